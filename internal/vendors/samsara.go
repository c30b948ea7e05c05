package vendors

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// SamsaraAdapter speaks the Samsara-style REST API with bearer-token auth
type SamsaraAdapter struct {
	client *http.Client
}

// NewSamsaraAdapter creates a Samsara adapter
func NewSamsaraAdapter(client *http.Client) *SamsaraAdapter {
	return &SamsaraAdapter{client: client}
}

// Vendor returns the vendor family name
func (a *SamsaraAdapter) Vendor() string {
	return models.VendorSamsara
}

// Send issues an immobilization command
func (a *SamsaraAdapter) Send(ctx context.Context, action Action, vehicle *models.Vehicle, cred *Credential) (*Response, error) {
	return doJSON(ctx, a.client, a.Vendor(), request{
		method: http.MethodPatch,
		url:    fmt.Sprintf("%s/fleet/vehicles/%s/immobilizer", cred.Endpoint, deviceID(vehicle)),
		headers: map[string]string{
			"Authorization": "Bearer " + cred.APIKey,
		},
		body: map[string]interface{}{
			"immobilize": action == ActionEngage,
		},
	})
}
