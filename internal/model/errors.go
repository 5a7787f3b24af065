package model

import (
	"errors"
	"fmt"
)

type ErrCode string

const (
	ErrInternal    ErrCode = "internal"
	ErrInvalid     ErrCode = "invalid_input"
	ErrNotFound    ErrCode = "not_found"
	ErrPersistence ErrCode = "persistence_failure"
	ErrScheduling  ErrCode = "scheduling_failure"
)

// Error is an application error carrying a machine-readable code.
type Error struct {
	Code        ErrCode
	Description string
}

func (e *Error) Error() string {
	return "smartalarm: " + string(e.Code) + ": " + e.Description
}

func Errorf(code ErrCode, format string, args ...any) error {
	return &Error{code, fmt.Sprintf(format, args...)}
}

// ErrorCode returns the code associated with err, or ErrInternal if err is
// not an application error.
func ErrorCode(err error) ErrCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return ErrInternal
}
