package codegen

import (
	"crypto/rand"
	"fmt"
)

// Alphabet für die Code-Erzeugung (62 Zeichen: 0-9, a-z, A-Z)
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CodePrefix is prepended to every generated activation code.
const CodePrefix = "FV-"

// GenerateSecureSlug creates a cryptographically secure random Base62 slug.
func GenerateSecureSlug(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid slug length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	// 248 is the largest multiple of 62 below 256.
	const maxRandomByte = 248

	slug := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			slug[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(slug), nil
}

// GenerateActivationCode returns a prefixed single-use code for plan seats
// sold outside the payment provider.
func GenerateActivationCode() (string, error) {
	slug, err := GenerateSecureSlug(12)
	if err != nil {
		return "", err
	}
	return CodePrefix + slug, nil
}
