// This is a compatibility shim for POSIX-defined errno codes across platforms.
// The syscall package doesn't define all the values we need on all systems,
// particularly things like EUCLEAN.

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK Errno = iota
	EPERM
	ENOENT
	EIO
	EEXIST
	ENOTDIR
	EISDIR
	EINVAL
	EFBIG
	ENOSPC
	EROFS
	EDOM
	ENAMETOOLONG
	ENOTSUP
	ENOBUFS
	EUCLEAN
)

var errorMessagesByCode = map[Errno]string{
	EOK:          "Success",
	EPERM:        "Operation not permitted",
	ENOENT:       "No such file or directory",
	EIO:          "Input/output error",
	EEXIST:       "File exists",
	ENOTDIR:      "Not a directory",
	EISDIR:       "Is a directory",
	EINVAL:       "Invalid argument",
	EFBIG:        "File too large",
	ENOSPC:       "No space left on device",
	EROFS:        "Read-only file system",
	EDOM:         "Numerical argument out of domain",
	ENAMETOOLONG: "File name too long",
	ENOTSUP:      "Operation not supported",
	ENOBUFS:      "No buffer space available",
	EUCLEAN:      "Structure needs cleaning",
}

var ErrNotPermitted = New(EPERM)
var ErrNotFound = New(ENOENT)
var ErrIOFailed = New(EIO)
var ErrExists = New(EEXIST)
var ErrNotADirectory = New(ENOTDIR)
var ErrIsADirectory = New(EISDIR)
var ErrInvalidArgument = New(EINVAL)
var ErrFileTooLarge = New(EFBIG)
var ErrNoSpaceOnDevice = New(ENOSPC)
var ErrReadOnlyFileSystem = New(EROFS)
var ErrArgumentOutOfRange = New(EDOM)
var ErrNameTooLong = New(ENAMETOOLONG)
var ErrNotSupported = New(ENOTSUP)
var ErrNoBufferSpace = New(ENOBUFS)
var ErrFileSystemCorrupted = New(EUCLEAN)

// StrError returns the message for an errno code, like strerror(3).
func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("Unknown error %d", int(code))
}
