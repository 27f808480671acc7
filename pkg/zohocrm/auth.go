package zohocrm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	httpclient "github.com/natserract/zcrm/pkg/http"
	"go.uber.org/zap"
)

// currentToken returns the live token. On first use it loads the stored
// token and probes it, falling back to a refresh.
func (c *Client) currentToken(ctx context.Context) (*Token, error) {
	if c.token != nil {
		return c.token, nil
	}
	return c.loadToken(ctx)
}

func (c *Client) loadToken(ctx context.Context) (*Token, error) {
	data, err := c.store.Read()
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			c.logger.Info("No stored access token, refreshing")
		} else {
			c.logger.Warn("Failed to read stored access token, refreshing", zap.Error(err))
		}
		return c.RefreshToken(ctx)
	}

	token, err := parseToken(data)
	if err != nil {
		c.logger.Warn("Stored access token is malformed, refreshing", zap.Error(err))
		return c.RefreshToken(ctx)
	}

	valid, err := c.probeToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !valid {
		c.logger.Info("Stored access token was rejected, refreshing")
		return c.RefreshToken(ctx)
	}

	c.token = token
	c.logger.Debug("Using stored access token", zap.String("token_type", token.TokenType))
	return token, nil
}

// probeToken makes a cheap authenticated call. Only a 401 marks the token
// invalid; other failures are left for the real request to report.
func (c *Client) probeToken(ctx context.Context, token *Token) (bool, error) {
	endpoint, err := httpclient.BuildURL(c.baseURL, "users", url.Values{"type": []string{"CurrentUser"}})
	if err != nil {
		return false, configError("invalid base url: %v", err)
	}

	resp, err := c.sender.Do(httpclient.RequestOptions{
		Method:  http.MethodGet,
		URL:     endpoint,
		Headers: authHeader(token),
		Context: ctx,
	})
	if err != nil {
		c.logger.Error("Token probe request failed", zap.Error(err))
		return false, fmt.Errorf("token probe request failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, nil
	case !resp.OK():
		c.logger.Warn("Token probe returned unexpected status", zap.Int("status_code", resp.StatusCode))
	}
	return true, nil
}

// RefreshToken obtains a new access token with the refresh token, persists
// it and makes it the current token.
func (c *Client) RefreshToken(ctx context.Context) (*Token, error) {
	endpoint := c.accountsURL + "/oauth/v2/token"
	c.logger.Info("Refreshing access token", zap.String("url", endpoint))

	query := url.Values{
		"refresh_token": []string{c.config.RefreshToken},
		"client_id":     []string{c.config.ClientID},
		"client_secret": []string{c.config.ClientSecret},
		"grant_type":    []string{"refresh_token"},
	}

	resp, err := c.sender.Do(httpclient.RequestOptions{
		Method:  http.MethodPost,
		URL:     endpoint,
		Query:   query,
		Context: ctx,
	})
	if err != nil {
		c.logger.Error("Token refresh request failed", zap.Error(err), zap.String("url", endpoint))
		return nil, fmt.Errorf("%w: token refresh request failed: %w", ErrAuthentication, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Token refresh failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(resp.Body)))
		return nil, authError("failed to get access token: %s (status code %d)", resp.Reason(), resp.StatusCode)
	}

	// A bad refresh token still yields 200, with {"error": "invalid_code"}.
	token, err := parseToken(resp.Body)
	if err != nil {
		c.logger.Error("Malformed credential response", zap.Error(err), zap.String("response", string(resp.Body)))
		return nil, authError("malformed credential response: %v", err)
	}

	if err := c.store.Write(resp.Body); err != nil {
		c.logger.Error("Failed to persist access token", zap.Error(err))
	}
	c.token = token

	c.logger.Info("Successfully refreshed access token",
		zap.String("token_type", token.TokenType),
		zap.Int("expires_in", token.ExpiresIn))

	return token, nil
}

func authHeader(token *Token) map[string]string {
	return map[string]string{
		"Authorization": authScheme + " " + token.AccessToken,
	}
}
