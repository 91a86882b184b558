package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/localnerve/autogift/internal/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Edge functions invoked by the service
const (
	FunctionProcessAutoGift   = "process-auto-gift"
	FunctionSendNotification  = "send-email-notification"
	edgeMaxRetries            = 3
	edgeDefaultRetryInterval  = 500 * time.Millisecond
	edgeDefaultRequestTimeout = 15 * time.Second
)

// EdgeInvoker calls a serverless function and returns its payload
type EdgeInvoker interface {
	Invoke(ctx context.Context, function string, body interface{}) (map[string]interface{}, error)
}

// EdgeClient posts JSON to the hosted edge functions. Responses use a
// {success, ...payload} or {error} envelope.
type EdgeClient struct {
	baseURL       string
	serviceKey    string
	httpClient    *http.Client
	retryInterval time.Duration
}

// NewEdgeClient creates a client for baseURL. A nil httpClient gets a default with a timeout.
func NewEdgeClient(baseURL, serviceKey string, httpClient *http.Client) *EdgeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: edgeDefaultRequestTimeout}
	}
	return &EdgeClient{
		baseURL:       baseURL,
		serviceKey:    serviceKey,
		httpClient:    httpClient,
		retryInterval: edgeDefaultRetryInterval,
	}
}

// Invoke calls function with body. Only HTTP 429 is retried, with exponential backoff.
func (c *EdgeClient) Invoke(ctx context.Context, function string, body interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s request", function)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0

	var result map[string]interface{}
	attempt := 0
	operation := func() error {
		attempt++
		res, status, err := c.post(ctx, function, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		if status == http.StatusTooManyRequests {
			log.Warn().Str("function", function).Int("attempt", attempt).Msg("edge function rate limited, backing off")
			return &types.RemoteCallError{Function: function, StatusCode: status, Message: "rate limited"}
		}
		result = res
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, edgeMaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// post performs one attempt. A non-nil error is final; a 429 is reported through status only.
func (c *EdgeClient) post(ctx context.Context, function string, payload []byte) (map[string]interface{}, int, error) {
	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, errors.Wrap(err, "build edge request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("apikey", c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &types.RemoteCallError{Function: function, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, &types.RemoteCallError{Function: function, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	var envelope map[string]interface{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, resp.StatusCode, &types.RemoteCallError{
				Function:   function,
				StatusCode: resp.StatusCode,
				Message:    "invalid JSON response",
				Err:        err,
			}
		}
	}

	if msg := envelopeError(envelope); msg != "" {
		return nil, resp.StatusCode, &types.RemoteCallError{Function: function, StatusCode: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &types.RemoteCallError{
			Function:   function,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}
	if envelope == nil {
		envelope = map[string]interface{}{}
	}
	return envelope, resp.StatusCode, nil
}

// envelopeError extracts the error field, which is either a string or {message}
func envelopeError(envelope map[string]interface{}) string {
	switch v := envelope["error"].(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	b, _ := json.Marshal(envelope["error"])
	return string(b)
}
