package vendors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/errs"
)

func testVehicle(deviceID string) *models.Vehicle {
	providerID := uuid.New()
	return &models.Vehicle{
		ID:             uuid.New(),
		FleetID:        uuid.New(),
		Name:           "Truck 42",
		ProviderID:     &providerID,
		VendorDeviceID: &deviceID,
	}
}

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   map[string]interface{}
}

func captureServer(t *testing.T, status int) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.header = r.Header.Clone()
		if b, err := io.ReadAll(r.Body); err == nil && len(b) > 0 {
			_ = json.Unmarshal(b, &captured.body)
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestSamsaraAdapter(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK)

	a := NewSamsaraAdapter(srv.Client())
	cred := &Credential{APIKey: "samsara-token", Endpoint: srv.URL}

	resp, err := a.Send(context.Background(), ActionEngage, testVehicle("veh-123"), cred)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.VendorSamsara, resp.Vendor)

	assert.Equal(t, http.MethodPatch, captured.method)
	assert.Equal(t, "/fleet/vehicles/veh-123/immobilizer", captured.path)
	assert.Equal(t, "Bearer samsara-token", captured.header.Get("Authorization"))
	assert.Equal(t, true, captured.body["immobilize"])

	_, err = a.Send(context.Background(), ActionDisengage, testVehicle("veh-123"), cred)
	require.NoError(t, err)
	assert.Equal(t, false, captured.body["immobilize"])
}

func TestGeotabAdapter(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK)

	a := NewGeotabAdapter(srv.Client())
	cred := &Credential{APIKey: "fleet-user", APISecret: "fleet-pass", Endpoint: srv.URL}

	_, err := a.Send(context.Background(), ActionEngage, testVehicle("b1234"), cred)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "ImmobilizeDevice", captured.body["method"])
	params := captured.body["params"].(map[string]interface{})
	assert.Equal(t, "b1234", params["deviceId"])

	// Credentials ride in the payload for this vendor family
	creds := params["credentials"].(map[string]interface{})
	assert.Equal(t, "fleet-user", creds["userName"])

	_, err = a.Send(context.Background(), ActionDisengage, testVehicle("b1234"), cred)
	require.NoError(t, err)
	assert.Equal(t, "ResetImmobilize", captured.body["method"])
}

func TestVerizonAdapter(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK)

	a := NewVerizonAdapter(srv.Client())
	cred := &Credential{APIKey: "user", APISecret: "pass", Endpoint: srv.URL}

	_, err := a.Send(context.Background(), ActionEngage, testVehicle("unit-9"), cred)
	require.NoError(t, err)

	assert.Equal(t, "/rad/v1/devices/unit-9/sendCommand", captured.path)
	assert.Contains(t, captured.header.Get("Authorization"), "Basic ")
	assert.Equal(t, "DISABLE_VEHICLE", captured.body["command"])

	_, err = a.Send(context.Background(), ActionDisengage, testVehicle("unit-9"), cred)
	require.NoError(t, err)
	assert.Equal(t, "ENABLE_VEHICLE", captured.body["command"])
}

func TestFleetCompleteAdapter(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK)

	a := NewFleetCompleteAdapter(srv.Client())
	cred := &Credential{APIKey: "fc-key", Endpoint: srv.URL}

	_, err := a.Send(context.Background(), ActionEngage, testVehicle("asset-7"), cred)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, captured.method)
	assert.Equal(t, "fc-key", captured.header.Get("X-Api-Key"))
	assert.Equal(t, "immobilized", captured.body["state"])
}

func TestTeletracAdapter(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK)

	a := NewTeletracAdapter(srv.Client())
	cred := &Credential{APIKey: "tt-token", Endpoint: srv.URL}

	_, err := a.Send(context.Background(), ActionDisengage, testVehicle("unit-3"), cred)
	require.NoError(t, err)

	assert.Equal(t, "/api/units/unit-3/commands", captured.path)
	assert.Equal(t, "Bearer tt-token", captured.header.Get("Authorization"))
	assert.Equal(t, "Restore", captured.body["commandType"])
}

func TestGenericAdapter(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK)

	a := NewGenericAdapter(srv.Client())

	t.Run("substitutes device id and action", func(t *testing.T) {
		cred := &Credential{
			APIKey:   "key",
			Endpoint: srv.URL,
			Extra: models.JSONB{
				"method":       "POST",
				"url_template": "/commands/{deviceId}",
				"auth_scheme":  "header",
				"auth_header":  "X-Custom-Key",
				"payload": map[string]interface{}{
					"op":     "{action}",
					"device": "{deviceId}",
				},
				"action_values": map[string]string{
					"engage":    "immobilize",
					"disengage": "restore",
				},
			},
		}

		_, err := a.Send(context.Background(), ActionEngage, testVehicle("dev-5"), cred)
		require.NoError(t, err)

		assert.Equal(t, "/commands/dev-5", captured.path)
		assert.Equal(t, "key", captured.header.Get("X-Custom-Key"))
		assert.Equal(t, "immobilize", captured.body["op"])
		assert.Equal(t, "dev-5", captured.body["device"])
	})

	t.Run("rejects missing configuration", func(t *testing.T) {
		cred := &Credential{Endpoint: srv.URL}
		_, err := a.Send(context.Background(), ActionEngage, testVehicle("dev-5"), cred)
		assert.True(t, errors.Is(err, errs.ErrConfiguration))
	})

	t.Run("rejects invalid method", func(t *testing.T) {
		cred := &Credential{
			Endpoint: srv.URL,
			Extra: models.JSONB{
				"method":       "TELEPORT",
				"url_template": "/x",
			},
		}
		_, err := a.Send(context.Background(), ActionEngage, testVehicle("dev-5"), cred)
		assert.True(t, errors.Is(err, errs.ErrConfiguration))
	})
}

func TestNon2xxSurfacesAsIntegrationError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusForbidden)

	a := NewSamsaraAdapter(srv.Client())
	cred := &Credential{APIKey: "bad-token", Endpoint: srv.URL}

	resp, err := a.Send(context.Background(), ActionEngage, testVehicle("veh-1"), cred)
	assert.True(t, errors.Is(err, errs.ErrIntegration))
	require.NotNil(t, resp, "response metadata is still returned for drift diagnosis")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var domainErr *errs.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, models.VendorSamsara, domainErr.Vendor)
}

func TestNetworkFailureSurfacesAsIntegrationError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusOK)
	client := srv.Client()
	srv.Close() // force connection failures

	a := NewTeletracAdapter(client)
	cred := &Credential{APIKey: "t", Endpoint: srv.URL}

	_, err := a.Send(context.Background(), ActionEngage, testVehicle("u"), cred)
	assert.True(t, errors.Is(err, errs.ErrIntegration))
}
