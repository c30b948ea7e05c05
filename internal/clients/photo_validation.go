package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/config"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
)

// PhotoValidationClient calls the photo validation API, an external service
// that classifies accident-scene photos. It is a collaborator, not part of
// this system; the client only speaks its batch endpoint.
type PhotoValidationClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// ValidationResult is one photo's classification outcome
type ValidationResult struct {
	PhotoID uuid.UUID                    `json:"photo_id"`
	Status  models.PhotoValidationStatus `json:"status"`
	Reason  string                       `json:"reason,omitempty"`
}

type validateBatchRequest struct {
	Photos []validatePhotoItem `json:"photos"`
}

type validatePhotoItem struct {
	PhotoID    uuid.UUID `json:"photo_id"`
	StorageKey string    `json:"storage_key"`
}

type validateBatchResponse struct {
	Results []ValidationResult `json:"results"`
}

// NewPhotoValidationClient creates a photo validation client
func NewPhotoValidationClient(cfg *config.PhotoAPIConfig, log *logger.Logger) *PhotoValidationClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &PhotoValidationClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// ValidateBatch submits photos for classification and returns one result per
// photo. A transport or non-2xx failure is an integration error; callers
// treat it as "validation unavailable", not as a failed gate.
func (c *PhotoValidationClient) ValidateBatch(ctx context.Context, photos []models.ReportPhoto) ([]ValidationResult, error) {
	if len(photos) == 0 {
		return nil, nil
	}

	reqBody := validateBatchRequest{Photos: make([]validatePhotoItem, 0, len(photos))}
	for _, p := range photos {
		reqBody.Photos = append(reqBody.Photos, validatePhotoItem{
			PhotoID:    p.ID,
			StorageKey: p.StorageKey,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal photo validation request: %w", err)
	}

	url := c.baseURL + "/v1/photos/validate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create photo validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Integration("photo-validation", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Integration("photo-validation", "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.IntegrationStatus("photo-validation",
			fmt.Sprintf("batch rejected: %s", truncateBody(string(body), 200)),
			resp.StatusCode,
		)
	}

	var out validateBatchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.Integration("photo-validation", "undecodable response", err)
	}

	c.logger.Debug("Photo validation batch completed",
		logger.Int("submitted", len(photos)),
		logger.Int("results", len(out.Results)),
	)

	return out.Results, nil
}

func truncateBody(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
