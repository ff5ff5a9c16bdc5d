// Package sanitize provides HTML sanitization for applicant-submitted rich
// text. Uses bluemonday to strip dangerous HTML (script tags, event handlers,
// javascript: URLs) while preserving the formatting the application editor
// emits.
package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton bluemonday policy for sanitizing user-generated HTML.
// Initialized once via sync.Once for thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared sanitization policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()

		// Allow tables for budget breakdowns pasted from office suites.
		policy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption")
		policy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

		// The editor marks text alignment with classes on block elements.
		policy.AllowAttrs("class").OnElements("p", "div", "h1", "h2", "h3", "li")
	})
	return policy
}

// HTML sanitizes user-generated HTML content by stripping dangerous elements
// (script, iframe, event handlers, javascript: URLs) while preserving safe
// formatting tags.
//
// This MUST be called on all user-provided HTML before storing it in the
// database. The sanitized output is safe for rendering via innerHTML.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	return getPolicy().Sanitize(input)
}

// PlainText sanitizes a short free-text field (titles, decision notes) by
// stripping every tag and collapsing surrounding whitespace.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(input))
}
