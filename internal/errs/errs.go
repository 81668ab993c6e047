package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// Kind classifies an error for the calling layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindAuthorization
	KindUnavailable
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindUnavailable:
		return "unavailable"
	case KindRetryable:
		return "retryable"
	default:
		return "internal"
	}
}

// Markers. Use Is(err, ErrNotFound) or KindOf(err), not equality.
var (
	ErrNotFound      = cr.New("not found")
	ErrConflict      = cr.New("conflict")
	ErrValidation    = cr.New("validation failed")
	ErrAuthorization = cr.New("not authorized")
	ErrUnavailable   = cr.New("unavailable")
	ErrRetryable     = cr.New("retryable")
)

var markers = []struct {
	kind Kind
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindConflict, ErrConflict},
	{KindValidation, ErrValidation},
	{KindAuthorization, ErrAuthorization},
	{KindUnavailable, ErrUnavailable},
	{KindRetryable, ErrRetryable},
}

func New(msg string) error {
	return cr.New(msg)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.Mark(err, markErr)
}

func Is(err, reference error) bool {
	return cr.Is(err, reference)
}

func As(err error, target any) bool {
	return cr.As(err, target)
}

func NotFoundf(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrNotFound)
}

func Conflictf(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrConflict)
}

func Validationf(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrValidation)
}

func Authorizationf(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrAuthorization)
}

func Unavailablef(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrUnavailable)
}

// KindOf returns the first kind marked on err, KindInternal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, m := range markers {
		if cr.Is(err, m.err) {
			return m.kind
		}
	}
	return KindInternal
}

func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
