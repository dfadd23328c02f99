package feed

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// DeriveURL builds the feed address from the page the chart is served on:
// same host, wss for https pages and ws otherwise, the given port and path.
func DeriveURL(pageURL, port, path string) (string, error) {
	page, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", err
	}
	host := page.Hostname()
	if host == "" {
		return "", errors.New("page url has no host")
	}
	scheme := "ws"
	if strings.EqualFold(page.Scheme, "https") {
		scheme = "wss"
	}
	if port = strings.TrimSpace(port); port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return (&url.URL{Scheme: scheme, Host: host, Path: path}).String(), nil
}
