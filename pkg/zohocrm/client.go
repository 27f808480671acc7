// Package zohocrm provides an authenticated client for the Zoho CRM REST API.
//
// The client owns the OAuth access token lifecycle: the token is loaded from a
// TokenStore on first use, probed, and refreshed with the long-lived refresh
// token when it is missing, unreadable or rejected. Every API call is
// classified by a single response validator; an HTTP 401 triggers exactly
// one refresh followed by one replay of the identical request.
//
// On top of that primitive the package offers a lazy paginated query engine
// (module listing and criteria search) and the record mutation protocol:
// create, update, delete and a client-side upsert that searches first and then
// updates the first match or inserts. The upsert is not atomic; two callers
// racing on the same criteria can both insert.
//
// A Client is not safe for concurrent use. It holds the current token and
// the cached user list without locking. Serialise calls externally or give
// each goroutine its own Client.
package zohocrm

import (
	"strings"

	"github.com/natserract/zcrm/pkg/config"
	httpclient "github.com/natserract/zcrm/pkg/http"
	"go.uber.org/zap"
)

// authScheme prefixes the access token in the Authorization header.
const authScheme = "Zoho-oauthtoken"

// Sender performs one HTTP exchange, retrying transient failures.
type Sender interface {
	Do(opts httpclient.RequestOptions) (*httpclient.Response, error)
}

// Client is the Zoho CRM API client. See the package documentation for the
// single-owner contract.
type Client struct {
	config      *config.Config
	baseURL     string
	accountsURL string
	sender      Sender
	store       TokenStore
	token       *Token
	userCache   map[string][]User
	logger      *zap.Logger
}

type dataCentre struct {
	accounts string
	api      string
}

var dataCentres = map[string]dataCentre{
	"US": {accounts: "https://accounts.zoho.com", api: "https://www.zohoapis.com"},
	"EU": {accounts: "https://accounts.zoho.eu", api: "https://www.zohoapis.eu"},
	"IN": {accounts: "https://accounts.zoho.in", api: "https://www.zohoapis.in"},
	"CN": {accounts: "https://accounts.zoho.com.cn", api: "https://www.zohoapis.com.cn"},
	"AU": {accounts: "https://accounts.zoho.com.au", api: "https://www.zohoapis.com.au"},
	"JP": {accounts: "https://accounts.zoho.jp", api: "https://www.zohoapis.jp"},
}

var hostingAliases = map[string]string{
	"":          "US",
	"COM":       "US",
	"INDIA":     "IN",
	"COM.CN":    "CN",
	"CHINA":     "CN",
	"COM.AU":    "AU",
	"AUSTRALIA": "AU",
}

// lookupDataCentre accepts "EU", ".EU", "com.au" and similar spellings.
func lookupDataCentre(hosting string) (dataCentre, error) {
	key := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(hosting), "."))
	if alias, ok := hostingAliases[key]; ok {
		key = alias
	}
	dc, ok := dataCentres[key]
	if !ok {
		return dataCentre{}, configError("unknown hosting region %q", hosting)
	}
	return dc, nil
}

// NewClient creates a client with a default production logger.
func NewClient(cfg *config.Config) (*Client, error) {
	logger, _ := zap.NewProduction()
	return NewClientWithLogger(cfg, logger)
}

// NewClientWithLogger creates a client that keeps its token in
// cfg.TokenDir and uses the retry policy from cfg.
func NewClientWithLogger(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, configError("config is required")
	}
	sender := httpclient.NewClientWithOptions(cfg.HTTPOptions(), logger)
	return NewClientWithSender(cfg, sender, NewFileTokenStore(cfg.TokenDir), logger)
}

// NewClientWithSender creates a client on an explicit transport and token
// store. No network call is made until the first operation.
func NewClientWithSender(cfg *config.Config, sender Sender, store TokenStore, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, configError("config is required")
	}
	dc, err := lookupDataCentre(cfg.Hosting)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = dc.api + "/crm/v2/"
	}
	accountsURL := cfg.AccountsURL
	if accountsURL == "" {
		accountsURL = dc.accounts
	}

	return &Client{
		config:      cfg,
		baseURL:     baseURL,
		accountsURL: strings.TrimSuffix(accountsURL, "/"),
		sender:      sender,
		store:       store,
		logger:      logger,
	}, nil
}

// BaseURL returns the API root in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}
