package sso

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateState returns a random URL safe CSRF state
func GenerateState() (string, error) {
	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}
