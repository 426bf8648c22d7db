// Package answer turns raw answer text into a comparable form and checks it
// against a stored one-way digest.
package answer

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned by Digest when the normalized answer exceeds what
// bcrypt can hash.
var ErrTooLong = errors.New("answer too long")

// ErrEmpty is returned by Digest when nothing is left after normalization.
var ErrEmpty = errors.New("answer is empty after normalization")

const maxDigestInput = 72

// Normalize lower-cases text and drops every punctuation, symbol-like ASCII
// and whitespace rune. Two inputs that differ only in case, spacing or
// punctuation normalize to the same string.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if dropped(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dropped(r rune) bool {
	if unicode.IsSpace(r) || unicode.IsPunct(r) {
		return true
	}
	// ASCII symbols like $ + < = > ^ ` | ~ count as punctuation too.
	return r < unicode.MaxASCII && unicode.IsSymbol(r)
}

// Digest returns the salted bcrypt digest of an already normalized answer.
func Digest(normalized string) (string, error) {
	if normalized == "" {
		return "", ErrEmpty
	}
	if len(normalized) > maxDigestInput {
		return "", ErrTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(normalized), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify reports whether normalized matches digest. A malformed digest never
// matches.
func Verify(digest, normalized string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(normalized)) == nil
}
