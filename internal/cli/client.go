package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
)

// Client talks to a running immobilizer instance over its internal API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	return resp, nil
}

func (c *Client) decodeOrError(resp *http.Response, wantStatus int, action string, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to %s: %s (status: %d)", action, string(body), resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck verifies the API is reachable
func (c *Client) HealthCheck() error {
	resp, err := c.doRequest("GET", "/healthz", nil)
	if err != nil {
		return err
	}
	return c.decodeOrError(resp, http.StatusOK, "check health", nil)
}

// GetWorkflow retrieves the workflow completion record for a report
func (c *Client) GetWorkflow(reportID uuid.UUID) (*models.WorkflowCompletion, error) {
	resp, err := c.doRequest("GET", "/internal/v1/reports/"+reportID.String()+"/workflow", nil)
	if err != nil {
		return nil, err
	}

	var workflow models.WorkflowCompletion
	if err := c.decodeOrError(resp, http.StatusOK, "get workflow", &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// ListPendingOverrides retrieves the pending override queue for a fleet
func (c *Client) ListPendingOverrides(fleetID uuid.UUID) ([]models.SupervisorOverrideRequest, error) {
	resp, err := c.doRequest("GET", "/internal/v1/fleets/"+fleetID.String()+"/overrides", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Overrides []models.SupervisorOverrideRequest `json:"overrides"`
	}
	if err := c.decodeOrError(resp, http.StatusOK, "list overrides", &result); err != nil {
		return nil, err
	}
	return result.Overrides, nil
}

type resolveOverrideBody struct {
	SupervisorID uuid.UUID `json:"supervisor_id"`
	Notes        string    `json:"notes,omitempty"`
}

// ApproveOverride approves a pending override request
func (c *Client) ApproveOverride(requestID, supervisorID uuid.UUID, notes string) (*models.SupervisorOverrideRequest, error) {
	return c.resolveOverride(requestID, supervisorID, notes, "approve")
}

// DenyOverride denies a pending override request
func (c *Client) DenyOverride(requestID, supervisorID uuid.UUID, notes string) (*models.SupervisorOverrideRequest, error) {
	return c.resolveOverride(requestID, supervisorID, notes, "deny")
}

func (c *Client) resolveOverride(requestID, supervisorID uuid.UUID, notes, verb string) (*models.SupervisorOverrideRequest, error) {
	path := "/internal/v1/overrides/" + requestID.String() + "/" + verb
	resp, err := c.doRequest("POST", path, resolveOverrideBody{SupervisorID: supervisorID, Notes: notes})
	if err != nil {
		return nil, err
	}

	var request models.SupervisorOverrideRequest
	if err := c.decodeOrError(resp, http.StatusOK, verb+" override", &request); err != nil {
		return nil, err
	}
	return &request, nil
}

type killSwitchBody struct {
	ActorID uuid.UUID `json:"actor_id"`
	Reason  string    `json:"reason"`
}

// KillSwitchResult mirrors the engage/disengage response
type KillSwitchResult struct {
	Vehicle *models.Vehicle `json:"vehicle"`
	Synced  bool            `json:"synced"`
	Changed bool            `json:"changed"`
	Warning string          `json:"warning,omitempty"`
}

// EngageVehicle manually engages a vehicle's kill switch
func (c *Client) EngageVehicle(vehicleID, actorID uuid.UUID, reason string) (*KillSwitchResult, error) {
	return c.killSwitchCommand(vehicleID, actorID, reason, "engage")
}

// DisengageVehicle manually disengages a vehicle's kill switch
func (c *Client) DisengageVehicle(vehicleID, actorID uuid.UUID, reason string) (*KillSwitchResult, error) {
	return c.killSwitchCommand(vehicleID, actorID, reason, "disengage")
}

func (c *Client) killSwitchCommand(vehicleID, actorID uuid.UUID, reason, verb string) (*KillSwitchResult, error) {
	path := "/internal/v1/vehicles/" + vehicleID.String() + "/" + verb
	resp, err := c.doRequest("POST", path, killSwitchBody{ActorID: actorID, Reason: reason})
	if err != nil {
		return nil, err
	}

	var result KillSwitchResult
	if err := c.decodeOrError(resp, http.StatusOK, verb+" vehicle", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListVehicleEvents retrieves the audit trail for a vehicle
func (c *Client) ListVehicleEvents(vehicleID uuid.UUID, limit int) ([]models.KillSwitchEvent, error) {
	path := fmt.Sprintf("/internal/v1/vehicles/%s/events?limit=%d", vehicleID, limit)
	resp, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Events []models.KillSwitchEvent `json:"events"`
	}
	if err := c.decodeOrError(resp, http.StatusOK, "list events", &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}
