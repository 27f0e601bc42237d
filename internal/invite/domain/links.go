package domain

import (
	"net/url"
	"strings"
)

const DefaultOrigin = "https://localhost"

// ResolveOrigin prefers the configured origin, then the forwarded request
// headers, then DefaultOrigin. The result never ends with a slash.
func ResolveOrigin(configured, forwardedProto, forwardedHost string) string {
	if origin := strings.TrimRight(strings.TrimSpace(configured), "/"); origin != "" {
		return origin
	}
	host := firstValue(forwardedHost)
	if host == "" {
		return DefaultOrigin
	}
	proto := strings.ToLower(firstValue(forwardedProto))
	if proto == "" {
		proto = "https"
	}
	return strings.TrimRight(proto+"://"+host, "/")
}

// AcceptURL builds the shareable link for token under origin.
func AcceptURL(origin, path, token string) string {
	return joinPath(origin, path) + "?token=" + url.QueryEscape(token)
}

// PostAcceptURL is the landing location after a redirect-mode redemption.
func PostAcceptURL(origin, path string) string {
	return joinPath(origin, path)
}

func joinPath(origin, path string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		origin = DefaultOrigin
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return origin
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return origin + path
}

func firstValue(header string) string {
	value, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(value)
}
