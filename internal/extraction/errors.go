package extraction

import (
	"errors"
	"fmt"
)

// ExtractionError: ответ модели так и не прошёл схему за отведённые попытки.
// Вызывающий считает операцию окончательно проваленной для этого входа.
type ExtractionError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// schemaError - ответ получен, но не соответствует схеме
type schemaError struct {
	msg string
}

func (e *schemaError) Error() string {
	return e.msg
}

func schemaErrorf(format string, args ...any) error {
	return &schemaError{msg: fmt.Sprintf(format, args...)}
}
