// Package validation checks request fields before they reach the domain packages.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize caps JSON request bodies at 64KB.
const MaxRequestSize = 64 << 10

// accountIDRegex accepts identifiers like MULE_RINGLEADER_01 or MULE_RAND_4821.
var accountIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,63}$`)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccountID reports whether id looks like a mule account identifier.
func IsValidAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects field errors from one request.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Rule produces a FieldError or nil.
type Rule func() *FieldError

// Validate runs rules in order and returns every failure, or nil.
func Validate(rules ...Rule) Errors {
	var errs Errors
	for _, r := range rules {
		if fe := r(); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

// Required fails on blank strings.
func Required(field, value string) Rule {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return &FieldError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// AccountID fails when a non-empty value is not a plausible account id.
func AccountID(field, value string) Rule {
	return func() *FieldError {
		if value != "" && !IsValidAccountID(value) {
			return &FieldError{Field: field, Message: "must be 1-64 letters, digits, '_', '.' or '-'"}
		}
		return nil
	}
}

// Latitude fails outside [-90, 90].
func Latitude(field string, v float64) Rule {
	return inRange(field, v, -90, 90)
}

// Longitude fails outside [-180, 180].
func Longitude(field string, v float64) Rule {
	return inRange(field, v, -180, 180)
}

// IntBetween fails when v is set and outside [lo, hi].
func IntBetween(field string, v *int, lo, hi int) Rule {
	return func() *FieldError {
		if v != nil && (*v < lo || *v > hi) {
			return &FieldError{Field: field, Message: "out of range"}
		}
		return nil
	}
}

// NonNegative fails on negative amounts.
func NonNegative(field string, v int64) Rule {
	return func() *FieldError {
		if v < 0 {
			return &FieldError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

func inRange(field string, v, lo, hi float64) Rule {
	return func() *FieldError {
		if v < lo || v > hi {
			return &FieldError{Field: field, Message: "out of range"}
		}
		return nil
	}
}

// Abort writes the standard 400 envelope for errs.
func Abort(c *gin.Context, errs Errors) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "validation_failed",
		"message": errs.Error(),
		"fields":  []FieldError(errs),
	})
}
