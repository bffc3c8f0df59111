package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferenceAlphabet leaves out characters that are easy to confuse when a
// reference is read aloud or typed from a phone screen: 0/O, 1/I/L.
const ReferenceAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	DefaultReferencePrefix = "ARET"
	referenceSuffixLen     = 5
	referenceDateLayout    = "060102"
)

func New() string {
	return uuid.NewString()
}

// NewReference returns a reference number such as ARET-261015-7KQ4M. The
// date part is rendered in t's location.
func NewReference(prefix string, t time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	suffix, err := randomString(ReferenceAlphabet, referenceSuffixLen)
	if err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	return prefix + "-" + t.Format(referenceDateLayout) + "-" + suffix, nil
}

func ValidReference(ref string) bool {
	parts := strings.Split(ref, "-")
	if len(parts) != 3 || parts[0] == "" {
		return false
	}
	if _, err := time.Parse(referenceDateLayout, parts[1]); err != nil {
		return false
	}
	if len(parts[2]) != referenceSuffixLen {
		return false
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune(ReferenceAlphabet, r) {
			return false
		}
	}
	return true
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
