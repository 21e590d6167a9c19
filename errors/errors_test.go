package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/dargueta/vvfat/errors"
	"github.com/stretchr/testify/assert"
)

func TestDriverError__WithMessage(t *testing.T) {
	newErr := errors.ErrNotSupported.WithMessage("asdfqwerty")
	assert.Equal(
		t, "Operation not supported: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, errors.ErrNotSupported)
	assert.Equal(t, errors.ENOTSUP, newErr.Errno())
}

func TestDriverError__WithMessageTwice(t *testing.T) {
	first := errors.ErrNotPermitted.WithMessage("first")
	second := first.WithMessage("second")

	assert.Equal(t, "Operation not permitted: first: second", second.Error())
	assert.ErrorIs(t, second, first)
	assert.ErrorIs(t, second, errors.ErrNotPermitted)
	assert.NotErrorIs(t, second, errors.ErrNotFound)
}

func TestDriverError__Wrap(t *testing.T) {
	originalErr := stderrors.New("original error")
	newErr := errors.ErrExists.Wrap(originalErr)
	expectedMessage := "File exists: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, errors.ErrExists, "driver error not set as parent")
	assert.Equal(t, errors.EEXIST, newErr.Errno())
}

func TestErrnoOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", errors.ErrReadOnlyFileSystem.WithMessage("inner"))

	assert.Equal(t, errors.EOK, errors.ErrnoOf(nil))
	assert.Equal(t, errors.EROFS, errors.ErrnoOf(wrapped))
	assert.Equal(t, errors.EIO, errors.ErrnoOf(stderrors.New("plain")))
}

func TestStrError__Unknown(t *testing.T) {
	assert.Equal(t, "Unknown error 9999", errors.StrError(errors.Errno(9999)))
}

func TestSentinels__Messages(t *testing.T) {
	cases := map[string]errors.DriverError{
		"Operation not permitted":   errors.ErrNotPermitted,
		"Input/output error":        errors.ErrIOFailed,
		"Read-only file system":     errors.ErrReadOnlyFileSystem,
		"Operation not supported":   errors.ErrNotSupported,
		"No buffer space available": errors.ErrNoBufferSpace,
		"Structure needs cleaning":  errors.ErrFileSystemCorrupted,
	}
	for message, err := range cases {
		assert.Equal(t, message, err.Error())
	}
}
