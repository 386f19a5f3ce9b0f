package remote

import (
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation error")
	ErrNetwork            = errors.New("network error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Error は操作名と持ち主の種類を付けたエラー。Err は上の分類のどれか。
type Error struct {
	Op      string
	Kind    model.CollectionKind
	Owner   model.OwnerKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s (%s): %v", e.Kind, e.Op, e.Owner, e.Err)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable は呼び出し側でリトライしてよいか（通信系だけ）
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServiceUnavailable)
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrServiceUnavailable
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}
