package zohocrm_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/natserract/zcrm/pkg/config"
	httpclient "github.com/natserract/zcrm/pkg/http"
	"github.com/natserract/zcrm/pkg/zohocrm"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testBaseURL     = "https://crm.test/crm/v2/"
	testAccountsURL = "https://accounts.test"
	tokenPath       = "oauth/v2/token"
)

// call is one request seen by the stub, with the path made relative to the
// API root (or to the accounts host for token requests).
type call struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    any
}

type handlerFunc func(c call) *httpclient.Response

// stubSender plays the CRM. Requests the handler does not answer fall back to
// a fresh token for the accounts endpoint, an accepted probe, and 404.
type stubSender struct {
	t       *testing.T
	handler handlerFunc
	calls   []call
	tokens  int
}

func (s *stubSender) Do(opts httpclient.RequestOptions) (*httpclient.Response, error) {
	parsed, err := url.Parse(opts.URL)
	require.NoError(s.t, err)

	query := parsed.Query()
	for k, v := range opts.Query {
		query[k] = v
	}

	path := strings.TrimPrefix(parsed.Path, "/crm/v2/")
	path = strings.TrimPrefix(path, "/")

	c := call{Method: opts.Method, Path: path, Query: query, Headers: opts.Headers, Body: opts.Body}
	s.calls = append(s.calls, c)

	if s.handler != nil {
		if resp := s.handler(c); resp != nil {
			if resp.URL == "" {
				resp.URL = opts.URL
			}
			return resp, nil
		}
	}

	switch {
	case path == tokenPath:
		s.tokens++
		return respond(http.StatusOK, fmt.Sprintf(`{"access_token":"fresh-%d","expires_in":3600,"token_type":"Bearer"}`, s.tokens)), nil
	case path == "users" && query.Get("type") == zohocrm.UserTypeCurrent:
		return respond(http.StatusOK, `{"users":[{"id":"1","full_name":"Api User","status":"active"}]}`), nil
	}
	return respond(http.StatusNotFound, `{"code":"INVALID_URL_PATTERN"}`), nil
}

// count returns how many requests hit method and path.
func (s *stubSender) count(method, path string) int {
	n := 0
	for _, c := range s.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (s *stubSender) find(method, path string) []call {
	var out []call
	for _, c := range s.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func respond(status int, body string) *httpclient.Response {
	return &httpclient.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Body:       []byte(body),
	}
}

func respondJSON(t *testing.T, status int, body any) *httpclient.Response {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return respond(status, string(data))
}

// memStore is an in-memory TokenStore.
type memStore struct {
	data   []byte
	writes int
}

func (m *memStore) Read() ([]byte, error) {
	if m.data == nil {
		return nil, zohocrm.ErrTokenNotFound
	}
	return m.data, nil
}

func (m *memStore) Write(data []byte) error {
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		RefreshToken:    "refresh",
		ClientID:        "client",
		ClientSecret:    "secret",
		Hosting:         "US",
		BaseURL:         testBaseURL,
		AccountsURL:     testAccountsURL,
		DefaultUserName: "Default Owner",
		DefaultUserID:   "999",
	}
}

// newTestClient returns a client whose store already holds a valid token.
func newTestClient(t *testing.T, handler handlerFunc) (*zohocrm.Client, *stubSender, *memStore) {
	t.Helper()

	sender := &stubSender{t: t, handler: handler}
	store := &memStore{data: []byte(`{"access_token":"stored"}`)}
	client, err := zohocrm.NewClientWithSender(testConfig(), sender, store, zap.NewNop())
	require.NoError(t, err)
	return client, sender, store
}
