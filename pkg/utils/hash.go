package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// CalculateSHA256 computes the hex SHA-256 of a house page body for the ledger.
func CalculateSHA256(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
