package vvfat

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dargueta/vvfat/errors"
)

// DefaultGeometry is the preset used when neither the options nor the open
// spec select one.
const DefaultGeometry = "hd-504m"

// DefaultVolumeLabel is written to the boot sector and the root directory.
const DefaultVolumeLabel = "QEMU VVFAT"

const defaultMaxPendingCommits = 4096
const defaultMaxDirectoryEntries = 1 << 16

// Options controls how a disk is built. The zero value is usable.
type Options struct {
	// Geometry is the slug of a preset from the disks package. A modifier in
	// the open spec, such as "fat:floppy:", takes precedence.
	Geometry string
	// ReadOnly forces read-only mode even for a "fatrw:" spec.
	ReadOnly    bool
	VolumeLabel string
	// MaxPendingCommits is the number of clusters of guest data that can be
	// buffered while waiting for the owning file to become consistent.
	MaxPendingCommits int
	// MaxDirectoryEntries bounds the size of the synthesized directory region.
	MaxDirectoryEntries int
	// CheckConsistency runs [Disk.CheckConsistency] after every write. It's
	// slow and meant for debugging.
	CheckConsistency bool
	// Logger receives diagnostics. Nothing is logged if it's nil.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Geometry == "" {
		o.Geometry = DefaultGeometry
	}
	if o.VolumeLabel == "" {
		o.VolumeLabel = DefaultVolumeLabel
	}
	if o.MaxPendingCommits <= 0 {
		o.MaxPendingCommits = defaultMaxPendingCommits
	}
	if o.MaxDirectoryEntries <= 0 {
		o.MaxDirectoryEntries = defaultMaxDirectoryEntries
	}
	return o
}

// specModifiers maps the modifiers allowed between the "fat:" prefix and the
// directory to geometry presets.
var specModifiers = map[string]string{
	"floppy":   "floppy-1440",
	"floppy28": "floppy-2880",
}

type openSpec struct {
	writable bool
	geometry string
	dir      string
}

// parseSpec splits a spec like "fatrw:floppy:/some/dir" into its parts. The
// geometry is empty if no modifier is present.
func parseSpec(spec string) (openSpec, error) {
	var parsed openSpec
	var rest string

	switch {
	case strings.HasPrefix(spec, "fatrw:"):
		parsed.writable = true
		rest = spec[len("fatrw:"):]
	case strings.HasPrefix(spec, "fat:"):
		rest = spec[len("fat:"):]
	default:
		return parsed, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q doesn't start with \"fat:\" or \"fatrw:\"", spec))
	}

	for {
		modifier, remainder, found := strings.Cut(rest, ":")
		if !found {
			break
		}
		geometry, ok := specModifiers[modifier]
		if !ok {
			break
		}
		parsed.geometry = geometry
		rest = remainder
	}

	if rest == "" {
		return parsed, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no directory given in %q", spec))
	}
	parsed.dir = rest
	return parsed, nil
}
