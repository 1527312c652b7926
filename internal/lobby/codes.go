// internal/lobby/codes.go
package lobby

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/faceoff-gg/faceoff/internal/store"
)

// codeAlphabet is the 32-symbol set lobby codes are drawn from. Visually
// ambiguous characters (0/O, 1/I) are excluded.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the fixed length of a lobby code.
const CodeLength = 4

// maxCodeAttempts bounds the generate-and-check loop before falling back.
const maxCodeAttempts = 10

// GenerateCode returns a random lobby code.
func GenerateCode() string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(buf)
}

// IsValidCode reports whether code is exactly CodeLength upper-case
// alphanumeric characters. Fallback codes carry timestamp digits, so the
// full digit range is accepted here even though GenerateCode never emits
// 0 or 1.
func IsValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// fallbackCode builds a code from 2 random characters plus the last two
// digits of the unix timestamp. Uniqueness is not guaranteed on this path;
// it only bounds the allocation loop when the random space is congested.
func fallbackCode(now time.Time) string {
	ts := fmt.Sprintf("%02d", now.Unix()%100)
	return GenerateCode()[:2] + ts
}

// allocateCode generates a code not currently held by any lobby, retrying up
// to maxCodeAttempts before using the timestamp fallback.
func allocateCode(ctx context.Context, st store.Store) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := GenerateCode()
		exists, err := st.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code uniqueness: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return fallbackCode(time.Now()), nil
}
