package vendors

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// VerizonAdapter speaks the Verizon-Connect-style command API with basic auth
type VerizonAdapter struct {
	client *http.Client
}

// NewVerizonAdapter creates a Verizon adapter
func NewVerizonAdapter(client *http.Client) *VerizonAdapter {
	return &VerizonAdapter{client: client}
}

// Vendor returns the vendor family name
func (a *VerizonAdapter) Vendor() string {
	return models.VendorVerizon
}

// Send issues an immobilization command
func (a *VerizonAdapter) Send(ctx context.Context, action Action, vehicle *models.Vehicle, cred *Credential) (*Response, error) {
	command := "DISABLE_VEHICLE"
	if action == ActionDisengage {
		command = "ENABLE_VEHICLE"
	}

	auth := base64.StdEncoding.EncodeToString([]byte(cred.APIKey + ":" + cred.APISecret))

	return doJSON(ctx, a.client, a.Vendor(), request{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/rad/v1/devices/%s/sendCommand", cred.Endpoint, deviceID(vehicle)),
		headers: map[string]string{
			"Authorization": "Basic " + auth,
		},
		body: map[string]interface{}{
			"command": command,
		},
	})
}
