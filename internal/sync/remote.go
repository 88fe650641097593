package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/naturelog/backend/internal/errors"
	"github.com/naturelog/backend/internal/models"
)

// RemoteConfig holds remote endpoint configuration.
type RemoteConfig struct {
	BaseURL   string
	AuthToken string

	// Timeout bounds each push attempt. An expired attempt is reported
	// as a retryable timeout, not a hard failure.
	Timeout time.Duration
}

// RemoteClient talks to the observation sync endpoint over HTTP.
type RemoteClient struct {
	config     *RemoteConfig
	httpClient *http.Client
}

// NewRemoteClient creates a new RemoteClient.
func NewRemoteClient(config *RemoteConfig) *RemoteClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RemoteClient{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: false,
			},
		},
	}
}

// HealthURL returns the endpoint used by the connectivity probe.
func (c *RemoteClient) HealthURL() string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/api/health"
}

// upsertPayload is the wire form of an observation. Local bookkeeping
// (pending flag, local media path) never leaves the device.
type upsertPayload struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"owner_id"`
	Species    string  `json:"species"`
	Notes      string  `json:"notes,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ObservedAt int64   `json:"observed_at"`
	MediaURL   string  `json:"media_url,omitempty"`
	UpdatedAt  int64   `json:"updated_at"`
}

// UpsertObservation pushes one observation to the remote. The remote
// upserts by ID, so repeating the call with the same payload is safe.
func (c *RemoteClient) UpsertObservation(ctx context.Context, obs *models.Observation) error {
	payload := upsertPayload{
		ID:         obs.ID.String(),
		OwnerID:    obs.OwnerID,
		Species:    obs.Species,
		Notes:      obs.Notes,
		Latitude:   obs.Latitude,
		Longitude:  obs.Longitude,
		ObservedAt: obs.ObservedAt,
		MediaURL:   obs.MediaURL,
		UpdatedAt:  obs.UpdatedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode observation", err)
	}

	url := fmt.Sprintf("%s/api/observations/%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), obs.ID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build upsert request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError("upsert request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated ||
		resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return classifyStatus("upsert", resp)
}

// mediaUploadResponse is the remote's answer to a media upload.
type mediaUploadResponse struct {
	URL string `json:"url"`
}

// UploadMedia uploads a local media file and returns its remote URL.
// The content type is sniffed from the file itself rather than trusted
// from the extension.
func (c *RemoteClient) UploadMedia(ctx context.Context, observationID, path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrMediaUpload, "failed to read media file", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrMediaUpload, "failed to read media file", err)
	}

	url := fmt.Sprintf("%s/api/observations/%s/media",
		strings.TrimSuffix(c.config.BaseURL, "/"), observationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to build media request", err)
	}
	req.Header.Set("Content-Type", mtype.String())
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError("media upload failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyStatus("media upload", resp)
	}

	var uploaded mediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", apperrors.Wrap(apperrors.ErrMediaUpload, "failed to decode upload response", err)
	}
	if uploaded.URL == "" {
		return "", apperrors.New(apperrors.ErrMediaUpload, "upload response carried no URL")
	}

	return uploaded.URL, nil
}

// authorize attaches the bearer token when configured.
func (c *RemoteClient) authorize(req *http.Request) {
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
}

// classifyStatus maps an HTTP response to the sync error taxonomy:
// 5xx is retryable, 4xx is not, with auth codes called out separately.
func classifyStatus(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("%s failed with status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.New(apperrors.ErrSyncAuth, msg)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.New(apperrors.ErrSyncRejected, msg)
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return apperrors.New(apperrors.ErrSyncServer, msg)
	default:
		return apperrors.New(apperrors.ErrSyncFailed, msg)
	}
}

// classifyTransportError maps a client-side failure to the taxonomy.
// Timeouts and connection failures are always retryable.
func classifyTransportError(msg string, err error) error {
	if isTimeout(err) {
		return apperrors.Wrap(apperrors.ErrSyncTimeout, msg, err)
	}
	return apperrors.Wrap(apperrors.ErrSyncTransport, msg, err)
}

// isTimeout walks the error chain looking for a timeout.
func isTimeout(err error) bool {
	type timeouter interface {
		Timeout() bool
	}
	for e := err; e != nil; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}
