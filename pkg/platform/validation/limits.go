package validation

import (
	"fmt"

	dErrors "certify/pkg/domain-errors"
)

// MaxBodySize is the maximum accepted request body (64 KB).
const MaxBodySize = 64 * 1024

// Slice element count limits
const (
	// MaxJobIDs bounds retry and purge batches.
	MaxJobIDs = 500

	// MaxListLimit bounds job listings.
	MaxListLimit = 500

	// DefaultListLimit is used when a listing omits the limit.
	DefaultListLimit = 50
)

// String element length limits
const (
	// MaxQRPayloadLength bounds the scanned QR JSON.
	MaxQRPayloadLength = 2048

	// MaxIdentifierLength bounds user, course and certificate identifiers.
	MaxIdentifierLength = 128
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// ClampLimit returns DefaultListLimit for non-positive values and caps at MaxListLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
