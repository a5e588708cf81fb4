package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/generator"
	"codeberg.org/mutker/vitalsim/internal/logger"
	"github.com/go-resty/resty/v2"
)

const (
	vitalsPath = "/api/vitals"
	healthPath = "/health"
	assignPath = "/api/devices/{deviceID}/assign"

	maxErrorBody = 256
)

type httpClient struct {
	client *resty.Client
	log    logger.Logger
	mu     sync.RWMutex
	token  string
}

type assignRequest struct {
	PatientID string `json:"patient_id"`
	Notes     string `json:"notes,omitempty"`
}

// NewHTTPClient returns a Client posting to cfg.Endpoint. Requests are never
// retried; the next tick produces a fresh payload instead.
func NewHTTPClient(cfg Config, log logger.Logger) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &httpClient{
		client: client,
		log:    log,
	}
}

func (c *httpClient) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *httpClient) authToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *httpClient) request(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	if token := c.authToken(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func (c *httpClient) SendData(ctx context.Context, payload *generator.Payload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: errors.New().Wrap(ErrEncodePayload, err)}
	}

	resp, err := c.request(ctx).SetBody(body).Post(vitalsPath)

	return toResult(resp, err)
}

func (c *httpClient) TestConnection(ctx context.Context) bool {
	resp, err := c.request(ctx).Get(healthPath)
	if err != nil {
		c.log.Debug().Err(err).Msg("Health check failed")
		return false
	}

	c.log.Debug().Int("status", resp.StatusCode()).Msg("Health check completed")

	return resp.IsSuccess()
}

func (c *httpClient) AssignDevice(ctx context.Context, deviceID, patientID, notes string) Result {
	if c.authToken() == "" {
		return Result{Err: errors.New().New(ErrAuthenticationRequired)}
	}

	resp, err := c.request(ctx).
		SetPathParam("deviceID", deviceID).
		SetBody(assignRequest{PatientID: patientID, Notes: notes}).
		Post(assignPath)

	return toResult(resp, err)
}

func (*httpClient) Close() error {
	return nil
}

func toResult(resp *resty.Response, err error) Result {
	if err != nil {
		// Transport failure or timeout: no response to classify.
		return Result{Err: err}
	}

	r := Result{
		Success: resp.IsSuccess(),
		Status:  resp.StatusCode(),
	}

	body := resp.Body()
	if json.Valid(body) {
		r.Data = json.RawMessage(body)
	}

	if !r.Success {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		r.Err = fmt.Errorf("status %d: %s", r.Status, strings.TrimSpace(string(body)))
	}

	return r
}
