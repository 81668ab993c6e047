package codes

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"storagebooking/internal/errs"
)

const (
	bookingPrefix    = "SB"
	bookingSuffixLen = 6
	accessCodeLen    = 6

	// No 0/O, 1/I/L.
	suffixAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	digits         = "0123456789"
)

// ErrCodeSpaceExhausted is returned when every attempt collided.
var ErrCodeSpaceExhausted = errs.New("unique code attempts exhausted")

// Generator produces candidate codes. Tests swap in deterministic ones.
type Generator interface {
	BookingNumber(day time.Time) (string, error)
	AccessCode() (string, error)
}

type RandomGenerator struct{}

func NewRandomGenerator() RandomGenerator {
	return RandomGenerator{}
}

// BookingNumber returns SB-YYYYMMDD-XXXXXX for the given day.
func (RandomGenerator) BookingNumber(day time.Time) (string, error) {
	suffix, err := randomString(suffixAlphabet, bookingSuffixLen)
	if err != nil {
		return "", err
	}
	return bookingPrefix + "-" + day.UTC().Format("20060102") + "-" + suffix, nil
}

func (RandomGenerator) AccessCode() (string, error) {
	return randomString(digits, accessCodeLen)
}

func randomString(alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errs.Wrap(err, "read random")
		}
		b[i] = alphabet[num.Int64()]
	}
	return string(b), nil
}

// Unique draws from generate until exists reports a free value, at most attempts times.
func Unique(ctx context.Context, attempts int, generate func() (string, error), exists func(context.Context, string) (bool, error)) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
