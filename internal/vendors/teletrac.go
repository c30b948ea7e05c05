package vendors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// TeletracAdapter speaks the Teletrac-Navman-style unit command API
type TeletracAdapter struct {
	client *http.Client
}

// NewTeletracAdapter creates a Teletrac adapter
func NewTeletracAdapter(client *http.Client) *TeletracAdapter {
	return &TeletracAdapter{client: client}
}

// Vendor returns the vendor family name
func (a *TeletracAdapter) Vendor() string {
	return models.VendorTeletrac
}

// Send issues an immobilization command
func (a *TeletracAdapter) Send(ctx context.Context, action Action, vehicle *models.Vehicle, cred *Credential) (*Response, error) {
	commandType := "Immobilize"
	if action == ActionDisengage {
		commandType = "Restore"
	}

	return doJSON(ctx, a.client, a.Vendor(), request{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/api/units/%s/commands", cred.Endpoint, deviceID(vehicle)),
		headers: map[string]string{
			"Authorization": "Bearer " + cred.APIKey,
		},
		body: map[string]interface{}{
			"commandType": commandType,
		},
	})
}
