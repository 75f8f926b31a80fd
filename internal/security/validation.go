package security

import (
	"regexp"
	"strings"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
)

// Validation patterns
var (
	// Expiry symbols as the backend publishes them: 25JAN, 25JAN2024, 2024-01-25
	expiryPattern = regexp.MustCompile(`^([0-9]{1,2}[A-Z]{3}([0-9]{2}|[0-9]{4})?|[0-9]{4}-[0-9]{2}-[0-9]{2})$`)

	// Usernames: letters, digits, dot, dash, underscore, at
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{2,64}$`)

	// Backend user ids are opaque but never contain separators
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ValidateIndex normalizes and checks an index symbol.
func ValidateIndex(s string) (models.Index, error) {
	idx := models.Index(strings.ToUpper(strings.TrimSpace(s)))
	for _, supported := range models.SupportedIndices {
		if idx == supported {
			return idx, nil
		}
	}
	return "", errors.NewValidationError("index", s, "unsupported index")
}

// ValidateExpiry normalizes and checks an expiry symbol. Empty is allowed and
// lets the backend pick the nearest expiry.
func ValidateExpiry(s string) (string, error) {
	exp := strings.ToUpper(strings.TrimSpace(s))
	if exp == "" {
		return "", nil
	}
	if !expiryPattern.MatchString(exp) {
		return "", errors.NewValidationError("expiry", s, "expected a symbol like 25JAN or a YYYY-MM-DD date")
	}
	return exp, nil
}

// ValidateSource checks the feed selector.
func ValidateSource(s string) (models.Source, error) {
	src := models.Source(strings.ToLower(strings.TrimSpace(s)))
	switch src {
	case "":
		return models.SourceLive, nil
	case models.SourceLive, models.SourceHistorical:
		return src, nil
	default:
		return "", errors.NewValidationError("source", s, "must be live or historical")
	}
}

// ValidateUsername checks a login name.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return errors.NewValidationError("username", s, "invalid username")
	}
	return nil
}

// ValidateUserID checks an admin console user id before it is put in a URL path.
func ValidateUserID(s string) error {
	if !userIDPattern.MatchString(s) {
		return errors.NewValidationError("user_id", s, "invalid user id")
	}
	return nil
}
