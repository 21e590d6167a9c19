package testing

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// SectorReader is anything that can be read as a sequence of 512-byte sectors.
type SectorReader interface {
	ReadSectors(sector uint32, buffer []byte) error
	TotalSectors() uint32
}

// ReadImage reads every sector of `disk` and returns a stream over a copy of
// the data.
//
//   - Writes to the stream don't affect `disk`.
//   - The stream's size is fixed to the size of the disk. Attempting to write
//     past the end of this buffer will trigger an error.
func ReadImage(t *testing.T, disk SectorReader) io.ReadWriteSeeker {
	imageBytes := ReadSectors(t, disk, 0, disk.TotalSectors())
	return bytesextra.NewReadWriteSeeker(imageBytes)
}

// ReadSectors reads `count` sectors from `disk` starting at `first`, failing
// the test on error.
func ReadSectors(t *testing.T, disk SectorReader, first, count uint32) []byte {
	buffer := make([]byte, int(count)*512)
	err := disk.ReadSectors(first, buffer)
	require.NoErrorf(t, err, "failed to read %d sectors at %d", count, first)
	return buffer
}

// ReadAt reads `size` bytes at `offset` from an image stream returned by
// [ReadImage].
func ReadAt(t *testing.T, image io.ReadSeeker, offset int64, size int) []byte {
	_, err := image.Seek(offset, io.SeekStart)
	require.NoError(t, err)

	buffer := make([]byte, size)
	_, err = io.ReadFull(image, buffer)
	require.NoErrorf(t, err, "failed to read %d bytes at offset %d", size, offset)
	return buffer
}
