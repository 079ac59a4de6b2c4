// Package sanitize provides HTML sanitization for user-provided input.
// Uses bluemonday with two policies: a strict policy that strips all
// markup (flash messages, display names, profile text fields) and a UGC
// policy that keeps safe formatting (the long bio).
package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	ugcPolicy    *bluemonday.Policy
	policyOnce   sync.Once
)

// initPolicies builds the shared policies on first use.
func initPolicies() {
	policyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
		ugcPolicy = bluemonday.UGCPolicy()
	})
}

// Text strips all markup from the input and collapses surrounding
// whitespace. Every string that ends up in a flash cookie or a profile
// text column goes through this.
func Text(input string) string {
	if input == "" {
		return ""
	}
	initPolicies()
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// Bio sanitizes the long-bio field, stripping dangerous elements (script,
// iframe, event handlers, javascript: URLs) while keeping safe formatting
// tags. The output is safe for rendering via innerHTML.
func Bio(input string) string {
	if input == "" {
		return ""
	}
	initPolicies()
	return ugcPolicy.Sanitize(input)
}
