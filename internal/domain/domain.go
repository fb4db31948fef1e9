// Package domain is the single source of truth for the shell's trust
// boundary: it decides whether a hostname belongs to the embedded product
// surface, to the sign-in flow, or to the outside world. Every navigation
// and popup decision in the shell consults this package and nothing else.
package domain

import (
	"net/url"
	"strings"
)

// Classification of a hostname against the shell's domain lists.
type Classification int

const (
	// External is everything that matches no list entry, including
	// unparsable input. External content never renders inside the shell.
	External Classification = iota
	// Internal hostnames render inside the shell's own windows.
	Internal
	// OAuth hostnames are handled by the dedicated authentication window.
	OAuth
)

func (c Classification) String() string {
	switch c {
	case Internal:
		return "internal"
	case OAuth:
		return "oauth"
	default:
		return "external"
	}
}

// InternalDomains lists hostnames whose content belongs inside the shell.
// Matching is exact or true-subdomain (see Matches).
var InternalDomains = []string{
	"gemini.google.com",
}

// OAuthDomains lists hostnames of the Google sign-in flow. They open in the
// authentication window on the shared session so cookies reach the main
// window.
var OAuthDomains = []string{
	"accounts.google.com",
	"accounts.youtube.com",
	"myaccount.google.com",
}

// Matches reports whether host is domain itself or a true subdomain of it.
// "x.y" matches "y" only when x.y == y or x.y ends with ".y"; a hostname
// like "evil-y" must never match "y" (suffix-confusion resistance).
func Matches(host, domain string) bool {
	host = normalizeHost(host)
	domain = normalizeHost(domain)
	if host == "" || domain == "" {
		return false
	}
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

// Classify maps a hostname to exactly one classification. Order is internal
// list first, then OAuth; an empty or unparsable host is External.
func Classify(host string) Classification {
	for _, d := range InternalDomains {
		if Matches(host, d) {
			return Internal
		}
	}
	for _, d := range OAuthDomains {
		if Matches(host, d) {
			return OAuth
		}
	}
	return External
}

// ClassifyURL parses raw and classifies its hostname. Any parse failure or
// missing host yields External, so callers that gate on Internal/OAuth fail
// closed without extra checks.
func ClassifyURL(raw string) Classification {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return External
	}
	return Classify(u.Hostname())
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	// A lone trailing dot is the DNS root label; treat "y." as "y".
	host = strings.TrimSuffix(host, ".")
	return host
}
