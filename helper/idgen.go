package helper

import (
	"math/big"

	"github.com/google/uuid"
)

// uidRoot is the UUID-derived UID root, DICOM Part 5 Annex B.2.
const uidRoot = "2.25."

// GUID returns a fresh random identifier.
func GUID() string {
	return uuid.New().String()
}

// NewUID returns a fresh DICOM UID built from a random UUID.
func NewUID() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	return uidRoot + n.String()
}
