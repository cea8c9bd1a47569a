// Package validation holds format and strength checks for user input.
// Every check reports all violated rules at once so callers can render
// inline feedback in a single pass.
package validation

import (
	"regexp"
	"strings"

	"github.com/vaultkeeper/vaultd/internal/models"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	upperRegex = regexp.MustCompile(`[A-Z]`)
	digitRegex = regexp.MustCompile(`[0-9]`)
	// Fixed punctuation set for the symbol requirement
	symbolRegex = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>_+\-=\[\]~]`)
)

const MinPasswordLength = 8

// Result collects the outcome of a validation check.
type Result struct {
	IsValid bool
	Errors  []string
}

func resultFrom(errs []string) Result {
	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// Err converts a failed Result into a ValidationError, or nil if valid.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &models.ValidationError{Errors: r.Errors}
}

// ValidateEmail checks the local@domain.tld shape.
func ValidateEmail(email string) Result {
	var errs []string
	if !emailRegex.MatchString(strings.TrimSpace(email)) {
		errs = append(errs, "must be a valid email address")
	}
	return resultFrom(errs)
}

// ValidatePassword enforces the account password policy: minimum length,
// one uppercase letter, one digit, one symbol. All violations are reported.
func ValidatePassword(password string) Result {
	var errs []string

	if len(password) < MinPasswordLength {
		errs = append(errs, "must be at least 8 characters long")
	}
	if !upperRegex.MatchString(password) {
		errs = append(errs, "must contain at least one uppercase letter")
	}
	if !digitRegex.MatchString(password) {
		errs = append(errs, "must contain at least one number")
	}
	if !symbolRegex.MatchString(password) {
		errs = append(errs, "must contain at least one special character")
	}

	return resultFrom(errs)
}

// ValidateCredentialEntry checks a new or updated vault entry. Title and
// username must be non-empty after trimming, the secret is required, and
// the site, when present, must be an http(s) URL.
func ValidateCredentialEntry(entry models.CredentialEntry) Result {
	var errs []string

	if strings.TrimSpace(entry.Title) == "" {
		errs = append(errs, "title is required")
	}
	if strings.TrimSpace(entry.Username) == "" {
		errs = append(errs, "username is required")
	}
	if entry.Secret == "" {
		errs = append(errs, "secret is required")
	}
	if entry.Site != nil && *entry.Site != "" && !validSite(*entry.Site) {
		errs = append(errs, "site must start with http:// or https://")
	}

	return resultFrom(errs)
}

// ValidateSite checks a site URL on its own, for partial updates that
// only touch the site field. Empty is allowed.
func ValidateSite(site string) Result {
	if site != "" && !validSite(site) {
		return resultFrom([]string{"site must start with http:// or https://"})
	}
	return resultFrom(nil)
}

func validSite(site string) bool {
	return strings.HasPrefix(site, "http://") || strings.HasPrefix(site, "https://")
}
