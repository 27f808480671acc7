package zohocrm

import (
	"errors"
	"fmt"
	"net/url"
)

// Error kinds. Every error returned by the client wraps exactly one of these.
var (
	// ErrConfiguration reports an invalid client setup or call argument.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication reports a failed token refresh or a token rejected
	// again right after a refresh.
	ErrAuthentication = errors.New("authentication error")
	// ErrProtocol reports a response whose shape breaks the API contract.
	ErrProtocol = errors.New("protocol error")
	// ErrQuotaExceeded reports HTTP 429. It is never retried.
	ErrQuotaExceeded = errors.New("api quota exceeded")
	// ErrRemoteRejection reports any other unsuccessful status.
	ErrRemoteRejection = errors.New("remote rejection")
	// ErrRecordNotFound reports an empty response for a single record fetch.
	ErrRecordNotFound = errors.New("record not found")
	// ErrTokenNotFound is returned by a TokenStore that holds no token yet.
	ErrTokenNotFound = errors.New("token not found")
)

// APIError carries the diagnostics of an unsuccessful response.
type APIError struct {
	Kind       error
	StatusCode int
	Reason     string
	Body       string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status code %d), response %q, url %s, unquoted url %s",
		e.Kind, e.Reason, e.StatusCode, e.Body, e.URL, e.DecodedURL())
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// DecodedURL returns the request URL with percent-encoding removed, which is
// how criteria are easiest to read.
func (e *APIError) DecodedURL() string {
	decoded, err := url.QueryUnescape(e.URL)
	if err != nil {
		return e.URL
	}
	return decoded
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

func authError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, fmt.Sprintf(format, args...))
}
