package rfp

import (
	"errors"
	"fmt"

	"procurement/db"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrRFPClosed: операция не допускается для закрытого RFP
	ErrRFPClosed      = errors.New("rfp is closed")
	ErrDuplicateEmail = db.ErrDuplicateEmail
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFoundError: идентификатор RFP или поставщика ни на что не указывает
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// UnknownVendorError: у отправителя ответа нет записи поставщика
type UnknownVendorError struct {
	Email string
}

func (e *UnknownVendorError) Error() string {
	return fmt.Sprintf("no vendor registered with email %q", e.Email)
}

// DispatchError: часть писем не ушла, статус RFP не менялся.
// Result перечисляет, кому письмо ушло и кому нет.
type DispatchError struct {
	Result *SendResult
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed for %d of %d vendor(s): %v",
		len(e.Result.Failed), len(e.Result.Failed)+len(e.Result.Sent), e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
