package vendors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/validator"
)

// GenericConfig drives the configuration-based adapter. It lives in the
// provider's config column and is validated before the first command.
type GenericConfig struct {
	Method      string                 `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	URLTemplate string                 `json:"url_template" validate:"required"`
	Headers     map[string]string      `json:"headers,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	AuthScheme  string                 `json:"auth_scheme,omitempty" validate:"omitempty,oneof=bearer basic header none"`
	AuthHeader  string                 `json:"auth_header,omitempty"`

	// ActionValues maps the uniform engage/disengage vocabulary onto the
	// vendor's own command words, substituted for {action}
	ActionValues map[string]string `json:"action_values,omitempty"`
}

// GenericAdapter sends commands described entirely by stored configuration:
// HTTP verb, URL template with {deviceId}/{action} substitution, headers and
// payload template.
type GenericAdapter struct {
	client    *http.Client
	validator *validator.Validator
}

// NewGenericAdapter creates a configuration-driven adapter
func NewGenericAdapter(client *http.Client) *GenericAdapter {
	return &GenericAdapter{
		client:    client,
		validator: validator.New(),
	}
}

// Vendor returns the vendor family name
func (a *GenericAdapter) Vendor() string {
	return models.VendorGeneric
}

// Send issues an immobilization command per the stored configuration
func (a *GenericAdapter) Send(ctx context.Context, action Action, vehicle *models.Vehicle, cred *Credential) (*Response, error) {
	cfg, err := a.parseConfig(cred.Extra)
	if err != nil {
		return nil, err
	}

	actionValue := string(action)
	if v, ok := cfg.ActionValues[string(action)]; ok {
		actionValue = v
	}

	sub := strings.NewReplacer(
		"{deviceId}", deviceID(vehicle),
		"{action}", actionValue,
	)

	url := sub.Replace(cfg.URLTemplate)
	if !strings.HasPrefix(url, "http") {
		url = cred.Endpoint + url
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = sub.Replace(v)
	}

	switch cfg.AuthScheme {
	case "bearer":
		headers["Authorization"] = "Bearer " + cred.APIKey
	case "basic":
		headers["Authorization"] = "Basic " +
			base64.StdEncoding.EncodeToString([]byte(cred.APIKey+":"+cred.APISecret))
	case "header":
		name := cfg.AuthHeader
		if name == "" {
			name = "X-Api-Key"
		}
		headers[name] = cred.APIKey
	}

	var body interface{}
	if cfg.Payload != nil {
		body = substituteValues(cfg.Payload, sub)
	}

	return doJSON(ctx, a.client, a.Vendor(), request{
		method:  cfg.Method,
		url:     url,
		headers: headers,
		body:    body,
	})
}

func (a *GenericAdapter) parseConfig(raw models.JSONB) (*GenericConfig, error) {
	if len(raw) == 0 {
		return nil, errs.Configuration("generic vendor requires adapter configuration")
	}

	bytes, err := json.Marshal(raw)
	if err != nil {
		return nil, errs.Configuration("invalid generic adapter configuration: %v", err)
	}

	cfg := &GenericConfig{}
	if err := json.Unmarshal(bytes, cfg); err != nil {
		return nil, errs.Configuration("invalid generic adapter configuration: %v", err)
	}

	if err := a.validator.Validate(cfg); err != nil {
		return nil, errs.Configuration("generic adapter configuration: %v", err)
	}

	return cfg, nil
}

// substituteValues applies template substitution to every string leaf of the
// payload template
func substituteValues(in map[string]interface{}, sub *strings.Replacer) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = sub.Replace(val)
		case map[string]interface{}:
			out[k] = substituteValues(val, sub)
		default:
			out[k] = v
		}
	}
	return out
}
