package types

import (
	"errors"
	"fmt"
)

// 错误分类，handler 层通过 errors.Is 映射 HTTP 状态码
var (
	ErrValidation        = errors.New("validation error")         // 400
	ErrNotFound          = errors.New("not found")                // 404
	ErrAuth              = errors.New("authentication failed")    // 401，回调边界为 400
	ErrInvalidTransition = errors.New("invalid status transition") // 409
	ErrStore             = errors.New("store error")              // 500
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Store 包装持久层错误，对外只暴露通用 500
func Store(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}
