// Package origin implements the browser Origin-header policy enforced on the
// signaling WebSocket upgrade.
package origin

import (
	"net/url"
	"strings"
)

// Normalize validates an Origin header and returns it in canonical
// scheme://host[:port] form with default ports stripped. The special value
// "null" (sandboxed iframes, file://) is passed through.
func Normalize(header string) (string, bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || (u.Path != "" && u.Path != "/") {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, true
}

// Allowed reports whether a normalized origin may talk to the server.
//
// When allowlist is non-empty, entries must be "*" or normalized origins.
// Otherwise the default policy is same-host: the origin's host[:port] must
// match the request's Host header. Scheme is deliberately not compared so a
// TLS-terminating proxy in front of the relay does not break same-host
// requests.
func Allowed(normalized, requestHost string, allowlist []string) bool {
	if len(allowlist) > 0 {
		for _, entry := range allowlist {
			if entry == "*" || entry == normalized {
				return true
			}
		}
		return false
	}

	scheme, rest, ok := strings.Cut(normalized, "://")
	if !ok {
		// "null" and anything non-http(s) can never match a host.
		return false
	}

	host := strings.ToLower(strings.TrimSpace(requestHost))
	if host == "" {
		return false
	}
	if norm, ok := Normalize(scheme + "://" + host); ok {
		host = strings.TrimPrefix(norm, scheme+"://")
	}
	return rest == host
}
