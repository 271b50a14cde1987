package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound возвращается, когда запись отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict означает, что версия материала изменилась параллельно.
	ErrVersionConflict = errors.New("version conflict")
	// ErrClaimLost означает, что задача больше не принадлежит воркеру.
	ErrClaimLost = errors.New("job claim lost")
	// ErrPayloadUnavailable возвращается MediaProvider, когда контент для платформы не готов.
	ErrPayloadUnavailable = errors.New("payload unavailable")
)

// ValidationError описывает синхронно отклонённую операцию без изменения состояния.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError создаёт ошибку валидации.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation сообщает, является ли err ошибкой валидации.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ChannelErrorKind классифицирует ошибку канала для разбора оператором.
type ChannelErrorKind string

const (
	ChannelErrorTransient ChannelErrorKind = "transient"
	ChannelErrorPermanent ChannelErrorKind = "permanent"
)

// ChannelError — ошибка внешнего канала публикации. Оба вида повторяются по общей политике.
type ChannelError struct {
	Kind       ChannelErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ChannelError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s channel error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s channel error: %v", e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ChannelErrorKindOf возвращает вид ошибки канала. Неизвестные ошибки считаются временными.
func ChannelErrorKindOf(err error) ChannelErrorKind {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ChannelErrorTransient
}
