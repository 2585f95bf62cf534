package utils

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

func IsHTTP(rawURL string) bool {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsedURL.Scheme == "http" || parsedURL.Scheme == "https"
}

// FileURI renders an absolute path as a file:// URI.
func FileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// PathFromURI accepts either a file:// URI or a plain filesystem path and
// returns the cleaned path.
func PathFromURI(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty uri")
	}
	if !strings.Contains(raw, "://") {
		return filepath.Clean(raw), nil
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse uri %q: %w", raw, err)
	}
	if parsedURL.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", parsedURL.Scheme)
	}
	if parsedURL.Host != "" && parsedURL.Host != "localhost" {
		return "", fmt.Errorf("unsupported file uri host %q", parsedURL.Host)
	}
	return filepath.Clean(filepath.FromSlash(parsedURL.Path)), nil
}

// JoinURL appends elem to the endpoint path, tolerating a trailing slash on
// the endpoint.
func JoinURL(endpoint, elem string) (string, error) {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint %q: %w", endpoint, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("endpoint %q is not an http(s) url", endpoint)
	}
	return parsedURL.JoinPath(elem).String(), nil
}
