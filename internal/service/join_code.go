package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	JoinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultJoinCodeAttempts bounds collision retries when creating a session.
	DefaultJoinCodeAttempts = 5
)

// CodeGenerator produces candidate join codes.
type CodeGenerator func() (string, error)

// RandomJoinCode draws a code uniformly from the 36^6 code space.
func RandomJoinCode() (string, error) {
	var b strings.Builder
	b.Grow(JoinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := 0; i < JoinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		b.WriteByte(joinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CanonicalCode normalizes user input for lookups.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code (in any case) has the join code shape.
func ValidJoinCode(code string) bool {
	code = CanonicalCode(code)
	if len(code) != JoinCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(joinCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
