package http

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildURL appends path to the base URL's own path and sets the query
// parameters. "https://host/crm/v2/" + "Accounts/search" yields
// "https://host/crm/v2/Accounts/search".
func BuildURL(baseURL, path string, queryParams url.Values) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}

	if path != "" {
		parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	if len(queryParams) > 0 {
		parsedURL.RawQuery = queryParams.Encode()
	}

	return parsedURL.String(), nil
}
