package websocket

import (
	"net/url"
	"os"
	"strings"
)

// resolveProxyURL implements spec.md §6's proxy environment variable
// rules: http_proxy for ws://, https_proxy (or HTTPS_PROXY) preferred for
// wss:// with fallback to http_proxy, gated by no_proxy.
func resolveProxyURL(target *url.URL) string {
	host := target.Hostname()
	if matchesNoProxy(host, os.Getenv("no_proxy")) || matchesNoProxy(host, os.Getenv("NO_PROXY")) {
		return ""
	}

	if target.Scheme == "wss" {
		if v := os.Getenv("https_proxy"); v != "" {
			return v
		}
		if v := os.Getenv("HTTPS_PROXY"); v != "" {
			return v
		}
	}
	return os.Getenv("http_proxy")
}

// matchesNoProxy implements the no_proxy matching rules spec.md §9
// preserves exactly from its source: entries are comma- or
// whitespace-separated, trimmed, and "*" disables proxying for every host.
// With any leading "." removed from the entry, a host matches if it equals
// the entry or ends with "." + entry, ignoring case (so both
// "websocket.org" and ".websocket.org" match "echo.websocket.org", and
// ".websocket.org" also matches "websocket.org").
func matchesNoProxy(host, noProxy string) bool {
	if host == "" || noProxy == "" {
		return false
	}
	for _, raw := range splitNoProxyEntries(noProxy) {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		bare := strings.TrimPrefix(entry, ".")
		if strings.EqualFold(host, bare) {
			return true
		}
		if strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(bare)) {
			return true
		}
	}
	return false
}

// splitNoProxyEntries accepts both comma-separated and whitespace-padded
// entries, per the open question in spec.md §9.
func splitNoProxyEntries(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
