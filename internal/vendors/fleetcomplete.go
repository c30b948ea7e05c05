package vendors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// FleetCompleteAdapter speaks the Fleet-Complete-style asset API with a
// custom API-key header
type FleetCompleteAdapter struct {
	client *http.Client
}

// NewFleetCompleteAdapter creates a Fleet Complete adapter
func NewFleetCompleteAdapter(client *http.Client) *FleetCompleteAdapter {
	return &FleetCompleteAdapter{client: client}
}

// Vendor returns the vendor family name
func (a *FleetCompleteAdapter) Vendor() string {
	return models.VendorFleetComplete
}

// Send issues an immobilization command
func (a *FleetCompleteAdapter) Send(ctx context.Context, action Action, vehicle *models.Vehicle, cred *Credential) (*Response, error) {
	state := "immobilized"
	if action == ActionDisengage {
		state = "released"
	}

	return doJSON(ctx, a.client, a.Vendor(), request{
		method: http.MethodPut,
		url:    fmt.Sprintf("%s/v1/assets/%s/immobilization", cred.Endpoint, deviceID(vehicle)),
		headers: map[string]string{
			"X-Api-Key": cred.APIKey,
		},
		body: map[string]interface{}{
			"state": state,
		},
	})
}
