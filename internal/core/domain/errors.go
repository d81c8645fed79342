package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrIO              = errors.New("io failure")
	ErrParse           = errors.New("parse failure")
	ErrThumbnail       = errors.New("thumbnail failure")
	ErrRemoteTransport = errors.New("remote transport failure")
	ErrRemoteFormat    = errors.New("remote format failure")
	ErrConfig          = errors.New("configuration error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf names the first matching error kind, used in per-item report entries.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrThumbnail):
		return "thumbnail"
	case errors.Is(err, ErrRemoteTransport):
		return "remote_transport"
	case errors.Is(err, ErrRemoteFormat):
		return "remote_format"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}
