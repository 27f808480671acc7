package zohocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	httpclient "github.com/natserract/zcrm/pkg/http"
	"go.uber.org/zap"
)

// OutcomeKind classifies one HTTP response.
type OutcomeKind int

const (
	// OutcomeSuccess has a body: parsed JSON for 200, {"result": true} for
	// 201 and 202.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeEmpty is 204 No Content or 304 Not Modified.
	OutcomeEmpty
	// OutcomeAuthExpired is 401; the request is replayed once after a refresh.
	OutcomeAuthExpired
	// OutcomeQuotaExceeded is 429 and is never retried.
	OutcomeQuotaExceeded
	// OutcomeFatal is every other status.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeQuotaExceeded:
		return "quota_exceeded"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is a classified response. Raw always holds the response body so
// callers can inspect per-record results hidden behind the 201/202 sentinel.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       map[string]any
	Raw        []byte
	Err        error
}

// Accepted reports a 202, which may mask per-record validation errors.
func (o Outcome) Accepted() bool {
	return o.StatusCode == http.StatusAccepted
}

// Classify maps a response to an Outcome. It has no side effects.
func Classify(resp *httpclient.Response) Outcome {
	outcome := Outcome{StatusCode: resp.StatusCode, Raw: resp.Body}

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := decodeBody(resp.Body)
		if err != nil {
			outcome.Kind = OutcomeFatal
			outcome.Err = protocolError("unreadable response body from %s: %v", resp.URL, err)
			return outcome
		}
		outcome.Kind = OutcomeSuccess
		outcome.Body = body
	case http.StatusCreated, http.StatusAccepted:
		outcome.Kind = OutcomeSuccess
		outcome.Body = map[string]any{"result": true}
	case http.StatusNoContent, http.StatusNotModified:
		outcome.Kind = OutcomeEmpty
	case http.StatusUnauthorized:
		outcome.Kind = OutcomeAuthExpired
		outcome.Err = newAPIError(ErrAuthentication, resp)
	case http.StatusTooManyRequests:
		outcome.Kind = OutcomeQuotaExceeded
		outcome.Err = newAPIError(ErrQuotaExceeded, resp)
	default:
		outcome.Kind = OutcomeFatal
		outcome.Err = newAPIError(ErrRemoteRejection, resp)
	}
	return outcome
}

func newAPIError(kind error, resp *httpclient.Response) *APIError {
	return &APIError{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Reason:     resp.Reason(),
		Body:       string(resp.Body),
		URL:        resp.URL,
	}
}

func decodeBody(raw []byte) (map[string]any, error) {
	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

// apiRequest is everything needed to replay a call after a token refresh.
type apiRequest struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	body    any
}

// do sends the request with the current token and validates the response.
// A 401 forces one refresh and one replay; a second 401 is an
// ErrAuthentication. The returned Outcome is populated even on error.
func (c *Client) do(ctx context.Context, req apiRequest) (Outcome, error) {
	logger := c.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("method", req.method),
		zap.String("path", req.path))

	token, err := c.currentToken(ctx)
	if err != nil {
		return Outcome{}, err
	}

	endpoint, err := httpclient.BuildURL(c.baseURL, req.path, nil)
	if err != nil {
		return Outcome{}, configError("invalid base url: %v", err)
	}

	opts := httpclient.RequestOptions{
		Method:  req.method,
		URL:     endpoint,
		Query:   req.query,
		Headers: req.withAuth(token),
		Body:    req.body,
		Context: ctx,
	}

	outcome, err := c.send(opts)
	if err != nil {
		logger.Error("Request failed", zap.Error(err))
		return outcome, err
	}

	if outcome.Kind == OutcomeAuthExpired {
		logger.Info("Access token expired, refreshing and replaying request")
		token, err = c.RefreshToken(ctx)
		if err != nil {
			return outcome, err
		}
		opts.Headers = req.withAuth(token)
		outcome, err = c.send(opts)
		if err != nil {
			logger.Error("Replayed request failed", zap.Error(err))
			return outcome, err
		}
		if outcome.Kind == OutcomeAuthExpired {
			logger.Error("Request rejected again after token refresh", zap.Int("status_code", outcome.StatusCode))
			return outcome, outcome.Err
		}
	}

	switch outcome.Kind {
	case OutcomeQuotaExceeded:
		logger.Error("API quota exceeded", zap.Int("status_code", outcome.StatusCode))
		return outcome, outcome.Err
	case OutcomeFatal:
		logger.Error("Request was not successful",
			zap.Int("status_code", outcome.StatusCode),
			zap.String("response", string(outcome.Raw)))
		return outcome, outcome.Err
	}

	logger.Debug("Request succeeded",
		zap.Int("status_code", outcome.StatusCode),
		zap.Stringer("outcome", outcome.Kind))
	return outcome, nil
}

func (c *Client) send(opts httpclient.RequestOptions) (Outcome, error) {
	resp, err := c.sender.Do(opts)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %s request failed: %w", opts.Method, opts.URL, err)
	}
	return Classify(resp), nil
}

func (r apiRequest) withAuth(token *Token) map[string]string {
	headers := make(map[string]string, len(r.headers)+1)
	maps.Copy(headers, r.headers)
	maps.Copy(headers, authHeader(token))
	return headers
}
