package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, IsNotFound(ErrBookNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", ErrCategoryNotFound)))
	assert.True(t, IsConstraintViolation(ErrDuplicateCategory))
	assert.True(t, IsConstraintViolation(ErrReservedCategory))
	assert.False(t, IsConstraintViolation(ErrBookNotFound))
	assert.False(t, IsTransient(ErrDuplicateCategory))
}

func TestTransient(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(cause)

	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, Transient(err), "wrapping twice is a no-op")
	assert.Nil(t, Transient(nil))

	assert.True(t, IsTransient(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("syntax error")))
}
