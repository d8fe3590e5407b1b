package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrBatchRejected - сервер отверг батч целиком (4xx), повтор без изменений не поможет
	ErrBatchRejected = errors.New("batch rejected")
	// ErrUnauthorized - токен устройства отсутствует, истек или отозван
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport - запрос не дошел до сервера или ответ не был получен
	ErrTransport = errors.New("transport failure")
)

// StatusError - ответ сервера с неуспешным HTTP статусом
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Transient reports whether the request may succeed if retried unchanged.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Unwrap позволяет проверять класс ошибки через errors.Is
func (e *StatusError) Unwrap() error {
	switch {
	case e.Transient():
		return nil
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return errors.Join(ErrUnauthorized, ErrBatchRejected)
	default:
		return ErrBatchRejected
	}
}

// IsTransient классифицирует ошибку транспорта:
// сеть, таймаут, 5xx и 429 - временные, остальное - постоянные.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTransport) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
