//go:build !linux

package vvfat

import (
	"os"
	"time"
)

func hostTimes(info os.FileInfo) (created, accessed, modified time.Time) {
	modified = info.ModTime()
	return modified, modified, modified
}
