package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ========================================
// ERROR TAXONOMY
// ========================================

var (
	// ErrNotFound: record không tồn tại ở store. Khi delete → coi như đã xóa.
	ErrNotFound = errors.New("record not found")

	// ErrTransient: lỗi mạng/timeout. Local cache là authoritative,
	// việc sửa lại để lần reconcile sau.
	ErrTransient = errors.New("transient store failure")

	// ErrConstraintViolation: vi phạm ràng buộc (trùng tên category),
	// trả cho caller quyết định, không tự xử lý.
	ErrConstraintViolation = errors.New("constraint violation")
)

// Book errors
var (
	ErrBookNotFound = fmt.Errorf("book: %w", ErrNotFound)
	ErrInvalidBook  = errors.New("invalid book data")
	ErrAlreadyLent  = errors.New("book is already lent")
	ErrNotLent      = errors.New("book is not lent")
)

// Category errors
var (
	ErrCategoryNotFound  = fmt.Errorf("category: %w", ErrNotFound)
	ErrDuplicateCategory = fmt.Errorf("category name already exists: %w", ErrConstraintViolation)
	ErrReservedCategory  = fmt.Errorf("category name is reserved: %w", ErrConstraintViolation)
	ErrInvalidCategory   = errors.New("invalid category data")
)

// Transient bọc lỗi driver thành TransientNetworkFailure, giữ nguyên cause
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient: lỗi có thể tự hết ở lần thử sau
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}
