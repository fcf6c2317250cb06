package auth

import (
	"net/url"
	"strings"
)

// SafeRedirect validates a post-login redirect target against open-redirect
// abuse. It accepts relative paths and absolute http/https URLs whose host
// matches ours exactly; anything else collapses to the fallback. The
// candidate typically arrives from a cookie or a ?next= parameter, so it is
// attacker-controlled input.
func SafeRedirect(candidate, host, fallback string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return fallback
	}

	// protocol-relative URLs (//evil.com) parse as relative but navigate
	// cross-origin
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return fallback
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return fallback
	}

	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return fallback
		}
		if !strings.EqualFold(u.Host, host) {
			return fallback
		}
		return candidate
	}

	if u.Host != "" {
		return fallback
	}

	if !strings.HasPrefix(u.Path, "/") {
		return fallback
	}

	return candidate
}
