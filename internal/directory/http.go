package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"clinicbook_backend/platform/logger"

	"github.com/google/uuid"
)

// HTTPClient talks to the remote directory services. Fees are exchanged in
// cents (consultationFeeCents, selfEmployedFeeCents).
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

// NewHTTPClient creates the network directory adapter.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        log,
	}
}

func (c *HTTPClient) Patient(ctx context.Context, id uuid.UUID) (Patient, error) {
	var out Patient
	err := c.get(ctx, "/patients/"+url.PathEscape(id.String()), &out)
	return out, err
}

func (c *HTTPClient) Doctor(ctx context.Context, id uuid.UUID) (Doctor, error) {
	var out Doctor
	err := c.get(ctx, "/doctors/"+url.PathEscape(id.String()), &out)
	return out, err
}

func (c *HTTPClient) Hospital(ctx context.Context, id uuid.UUID) (Hospital, error) {
	var out Hospital
	err := c.get(ctx, "/hospitals/"+url.PathEscape(id.String()), &out)
	return out, err
}

func (c *HTTPClient) Specialty(ctx context.Context, id uuid.UUID) (Specialty, error) {
	var out Specialty
	err := c.get(ctx, "/specialties/"+url.PathEscape(id.String()), &out)
	return out, err
}

func (c *HTTPClient) HospitalDoctors(ctx context.Context, hospitalID uuid.UUID) ([]Association, error) {
	var out []Association
	if err := c.get(ctx, "/hospitals/"+url.PathEscape(hospitalID.String())+"/doctors", &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].HospitalID == uuid.Nil {
			out[i].HospitalID = hospitalID
		}
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, dest any) error {
	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("http request: %w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.log.Warn("directory upstream unavailable", "status", resp.StatusCode, "url", reqURL)
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		c.log.Error("directory request rejected", "status", resp.StatusCode, "url", reqURL)
		return fmt.Errorf("directory request rejected: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
