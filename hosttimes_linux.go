//go:build linux

package vvfat

import (
	"os"
	"syscall"
	"time"
)

// hostTimes returns the creation, access and modification times of a host
// file. Linux has no creation time in stat(2); the inode change time stands in
// for it.
func hostTimes(info os.FileInfo) (created, accessed, modified time.Time) {
	modified = info.ModTime()
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return modified, modified, modified
	}
	created = time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec))
	accessed = time.Unix(int64(stat.Atim.Sec), int64(stat.Atim.Nsec))
	return created, accessed, modified
}
