package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/errs"
)

// Action is the uniform command vocabulary across vendors
type Action string

const (
	ActionEngage    Action = "engage"
	ActionDisengage Action = "disengage"
)

// Credential is a transiently decrypted vendor credential. It must never be
// persisted; instances live only for the duration of one Send call.
type Credential struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret,omitempty"`

	// Endpoint and Extra come from the provider row, not the encrypted blob
	Endpoint string       `json:"-"`
	Extra    models.JSONB `json:"-"`
}

// Response is the vendor's reply to an immobilization command
type Response struct {
	Vendor     string    `json:"vendor"`
	StatusCode int       `json:"status_code"`
	Body       string    `json:"body,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// Adapter sends engage/disengage commands to one telematics vendor family
type Adapter interface {
	Vendor() string
	Send(ctx context.Context, action Action, vehicle *models.Vehicle, cred *Credential) (*Response, error)
}

// request describes one outbound vendor HTTP call
type request struct {
	method  string
	url     string
	headers map[string]string
	body    interface{}
}

// doJSON executes the vendor HTTP call and normalizes the outcome. Network
// failures and non-2xx responses surface as integration errors carrying the
// vendor name.
func doJSON(ctx context.Context, client *http.Client, vendor string, r request) (*Response, error) {
	var bodyReader io.Reader
	if r.body != nil {
		bodyBytes, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request body: %w", vendor, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", vendor, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FleetSafetyImmobilizer/1.0")
	req.Header.Set("X-Request-ID", uuid.New().String())
	for key, value := range r.headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.Integration(vendor, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Integration(vendor, "failed to read response", err)
	}

	result := &Response{
		Vendor:     vendor,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		SentAt:     time.Now(),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, errs.IntegrationStatus(vendor,
			fmt.Sprintf("command rejected: %s", truncate(string(respBody), 200)),
			resp.StatusCode,
		)
	}

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func deviceID(vehicle *models.Vehicle) string {
	if vehicle.VendorDeviceID == nil {
		return ""
	}
	return *vehicle.VendorDeviceID
}
