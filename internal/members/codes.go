package members

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	referralCodeLength   = 8
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator produces candidate referral codes. Uniqueness is enforced by
// the ux_members_referral_code index; callers retry on collision.
type CodeGenerator func() (string, error)

// RandomReferralCode returns an uppercase alphanumeric code of fixed length.
func RandomReferralCode() (string, error) {
	var sb strings.Builder
	sb.Grow(referralCodeLength)
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	for i := 0; i < referralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		sb.WriteByte(referralCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeReferralCode trims and upper-cases a user supplied code.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
