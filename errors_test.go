package vvfat_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dargueta/vvfat"
	"github.com/dargueta/vvfat/errors"
)

func TestErrCouldNotOpen__Wrap(t *testing.T) {
	originalErr := stderrors.New("no such directory")
	newErr := vvfat.ErrCouldNotOpen.Wrap(originalErr)

	assert.Equal(
		t,
		"Input/output error: could not open disk image: no such directory",
		newErr.Error())
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, vvfat.ErrCouldNotOpen)
	assert.ErrorIs(t, newErr, errors.ErrIOFailed)
	assert.Equal(t, errors.EIO, errors.ErrnoOf(newErr))
}

func TestUnsupportedOperations__Errno(t *testing.T) {
	for _, err := range []error{
		vvfat.ErrMkdirUnsupported,
		vvfat.ErrRmdirUnsupported,
		vvfat.ErrDirectoryChainChange,
	} {
		assert.ErrorIs(t, err, errors.ErrNotSupported)
		assert.Equal(t, errors.ENOTSUP, errors.ErrnoOf(err))
	}

	assert.Equal(t, errors.EPERM, errors.ErrnoOf(vvfat.ErrBootAreaWrite))
	assert.Equal(t, errors.EUCLEAN, errors.ErrnoOf(vvfat.ErrChainConflict))
}

func TestErrMkdirUnsupported__Message(t *testing.T) {
	assert.Equal(
		t, "Operation not supported: creating directories", vvfat.ErrMkdirUnsupported.Error())
}
