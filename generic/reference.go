package generic

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// BOOKING CODES AND REFERENCE NUMBERS
// =============================================================================

const (
	BookingCodePrefix = "ASS"

	ReferencePrefixDepartment = "DEPT"
	ReferencePrefixTransfer   = "TRANSF"
)

const (
	digits       = "0123456789"
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var bookingCodePattern = regexp.MustCompile(`^ASS-[0-9]{6}-[A-Z0-9]{6}$`)

// NewBookingCode returns ASS-######-XXXXXX. Uniqueness is probabilistic only.
func NewBookingCode() string {
	return BookingCodePrefix + "-" + randomString(digits, 6) + "-" + randomString(alphanumeric, 6)
}

// IsBookingCode reports whether s has the booking code shape.
func IsBookingCode(s string) bool {
	return bookingCodePattern.MatchString(s)
}

// NewReference returns PREFIX-YYYYMMDD-XXXXXXXX for ledger records.
func NewReference(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return strings.ToUpper(prefix) + "-" + at.Format("20060102") + "-" + suffix
}

func randomString(charset string, n int) string {
	max := big.NewInt(int64(len(charset)))
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		sb.WriteByte(charset[idx.Int64()])
	}
	return sb.String()
}
