package vendors

import (
	"context"
	"net/http"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// GeotabAdapter speaks the Geotab-style RPC command API. Credentials ride in
// the request payload rather than a header.
type GeotabAdapter struct {
	client *http.Client
}

// NewGeotabAdapter creates a Geotab adapter
func NewGeotabAdapter(client *http.Client) *GeotabAdapter {
	return &GeotabAdapter{client: client}
}

// Vendor returns the vendor family name
func (a *GeotabAdapter) Vendor() string {
	return models.VendorGeotab
}

// Send issues an immobilization command
func (a *GeotabAdapter) Send(ctx context.Context, action Action, vehicle *models.Vehicle, cred *Credential) (*Response, error) {
	method := "ImmobilizeDevice"
	if action == ActionDisengage {
		method = "ResetImmobilize"
	}

	body := map[string]interface{}{
		"method": method,
		"params": map[string]interface{}{
			"deviceId": deviceID(vehicle),
			"credentials": map[string]string{
				"userName": cred.APIKey,
				"password": cred.APISecret,
			},
		},
	}

	return doJSON(ctx, a.client, a.Vendor(), request{
		method: http.MethodPost,
		url:    cred.Endpoint + "/apiv1",
		body:   body,
	})
}
