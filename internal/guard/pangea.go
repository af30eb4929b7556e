package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"guarded-rag/internal/config"
)

const (
	guardPath      = "/v1/text/guard"
	requestPath    = "/request/"
	statusSuccess  = "Success"
	statusAccepted = "Accepted"
)

var (
	// ErrMissingResult means the service answered successfully without a result.
	ErrMissingResult = errors.New("ai guard response has no result")
	// ErrResultPending means a queued request did not finish before the poll
	// timeout or the context ended.
	ErrResultPending = errors.New("ai guard result still pending")
)

// APIError is a transport-level or service-level failure of the guard API.
type APIError struct {
	StatusCode int
	Status     string
	Summary    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ai guard request failed: http %d", e.StatusCode)
	if e.Status != "" {
		msg += ", status " + e.Status
	}
	if e.Summary != "" {
		msg += ": " + e.Summary
	}
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

type guardRequest struct {
	Text string `json:"text"`
}

// guardResponse is the Pangea response envelope. Result is required on
// success; RedactedPrompt is only set when something was redacted.
type guardResponse struct {
	RequestID string       `json:"request_id"`
	Status    string       `json:"status"`
	Summary   string       `json:"summary"`
	Result    *guardResult `json:"result"`
}

type guardResult struct {
	RedactedPrompt *string `json:"redacted_prompt"`
	Blocked        bool    `json:"blocked"`
	// set on queued (202) responses only
	Location string `json:"location"`
}

// PangeaClient calls the Pangea AI Guard text endpoint.
type PangeaClient struct {
	baseURL      string
	token        string
	client       *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewPangeaClient(cfg *config.GuardConfig) (*PangeaClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: ai guard token", config.ErrMissingCredential)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Domain == "" {
			return nil, fmt.Errorf("%w: pangea domain is empty", config.ErrInvalidConfig)
		}
		baseURL = "https://ai-guard." + cfg.Domain
	}
	pollInterval := cfg.PollIntervalMillis
	if pollInterval <= 0 {
		pollInterval = config.DefaultGuardPollIntervalMillis
	}
	pollTimeout := cfg.PollTimeoutSecs
	if pollTimeout <= 0 {
		pollTimeout = config.DefaultGuardPollTimeoutSecs
	}
	return &PangeaClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        cfg.Token,
		client:       &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		pollInterval: time.Duration(pollInterval) * time.Millisecond,
		pollTimeout:  time.Duration(pollTimeout) * time.Second,
	}, nil
}

// GuardText sends text to AI Guard and returns the redacted prompt when the
// service provides one, the original text otherwise. A queued request is
// polled until its result is ready.
func (c *PangeaClient) GuardText(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(guardRequest{Text: text})
	if err != nil {
		return "", err
	}

	out, pending, err := c.do(ctx, http.MethodPost, c.baseURL+guardPath, body)
	if err != nil {
		return "", err
	}
	if pending {
		if out, err = c.pollResult(ctx, out); err != nil {
			return "", err
		}
	}
	if out.Result == nil {
		return "", fmt.Errorf("%w (request %s)", ErrMissingResult, out.RequestID)
	}

	log.Debug().Str("request_id", out.RequestID).Bool("blocked", out.Result.Blocked).Msg("AI Guard checked chunk")
	if out.Result.RedactedPrompt != nil && *out.Result.RedactedPrompt != "" {
		return *out.Result.RedactedPrompt, nil
	}
	return text, nil
}

// do sends one request and decodes the response envelope. pending is true
// for a 202 response whose result has to be polled.
func (c *PangeaClient) do(ctx context.Context, method, url string, body []byte) (out *guardResponse, pending bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("ai guard request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("ai guard response: %w", err)
	}

	out = &guardResponse{}
	decodeErr := json.Unmarshal(payload, out)
	if resp.StatusCode == http.StatusAccepted && decodeErr == nil {
		return out, true, nil
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok || (decodeErr == nil && out.Status != statusSuccess) {
		return nil, false, &APIError{
			StatusCode: resp.StatusCode,
			Status:     out.Status,
			Summary:    out.Summary,
			RequestID:  out.RequestID,
		}
	}
	if decodeErr != nil {
		return nil, false, fmt.Errorf("decode ai guard response: %w", decodeErr)
	}
	return out, false, nil
}

// pollResult asks for the result of a queued request every poll interval
// until it is no longer pending.
func (c *PangeaClient) pollResult(ctx context.Context, accepted *guardResponse) (*guardResponse, error) {
	url := c.resultURL(accepted)
	if url == "" {
		return nil, &APIError{
			StatusCode: http.StatusAccepted,
			Status:     accepted.Status,
			Summary:    "queued response without request id or location",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (request %s): %w", ErrResultPending, accepted.RequestID, ctx.Err())
		case <-ticker.C:
		}

		log.Debug().Str("request_id", accepted.RequestID).Int("attempt", attempt).Msg("Polling queued AI Guard result")
		out, pending, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if !pending {
			return out, nil
		}
	}
}

func (c *PangeaClient) resultURL(accepted *guardResponse) string {
	if accepted.Result != nil && accepted.Result.Location != "" {
		location := accepted.Result.Location
		if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
			return location
		}
		return c.baseURL + "/" + strings.TrimPrefix(location, "/")
	}
	if accepted.RequestID != "" {
		return c.baseURL + requestPath + accepted.RequestID
	}
	return ""
}
