package vvfat

import (
	"github.com/dargueta/vvfat/errors"
)

// ErrCouldNotOpen is returned by [Open] when the disk image can't be built.
// The underlying cause is wrapped inside it.
var ErrCouldNotOpen = errors.ErrIOFailed.WithMessage("could not open disk image")

// ErrClosed is returned by every operation on a disk after [Disk.Close].
var ErrClosed = errors.ErrIOFailed.WithMessage("disk is closed")

// ErrBootAreaWrite is returned when the guest writes to the MBR, the hidden
// sectors, or the boot sector.
var ErrBootAreaWrite = errors.ErrNotPermitted.WithMessage("the boot area is read-only")

// ErrBackupFATMismatch is returned when a write to the second FAT doesn't
// match the primary FAT.
var ErrBackupFATMismatch = errors.ErrNotPermitted.WithMessage(
	"backup FAT doesn't match primary FAT")

// ErrDeletedCluster is returned when the guest writes data into a cluster that
// still belongs to a deleted file.
var ErrDeletedCluster = errors.ErrNotPermitted.WithMessage(
	"cluster belongs to a deleted file")

var ErrMkdirUnsupported = errors.ErrNotSupported.WithMessage("creating directories")
var ErrRmdirUnsupported = errors.ErrNotSupported.WithMessage("removing directories")
var ErrDirectoryChainChange = errors.ErrNotSupported.WithMessage(
	"changing the cluster chain of a directory")

// ErrChainConflict is returned when a FAT or directory write would make two
// files claim the same cluster, or make a chain loop back onto itself.
var ErrChainConflict = errors.ErrFileSystemCorrupted.WithMessage("cluster chains conflict")
