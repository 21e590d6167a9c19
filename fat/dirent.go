package fat

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
)

// DirentSize is the size of a single directory entry on disk, in bytes.
const DirentSize = 32

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1

	// AttrHidden is an attribute flag marking a directory entry as "hidden", meaning it
	// wouldn't show up in normal directory listings.
	AttrHidden = 2

	// AttrSystem is an attribute flag marking a directory entry as essential to the
	// operating system.
	AttrSystem = 4

	// AttrVolumeLabel is an attribute flag that marks a file as containing the true
	// volume label of the file system. It must reside in the root directory, and there
	// must be only one.
	AttrVolumeLabel = 8

	// AttrDirectory is an attribute flag marking a directory entry as being a directory.
	AttrDirectory = 16

	// AttrArchived is an attribute flag used by some systems to mark a directory entry
	// as "dirty", and is set it whenever the directory entry is created or modified.
	AttrArchived = 32

	// AttrLongName is the attribute value of a VFAT long file name fragment. No
	// real file can have all four of these bits set at once.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

const (
	// direntFree marks an entry that has never been used. All entries after it
	// in the same directory are free too.
	direntFree = 0x00
	// direntDeleted marks an entry that was used once but is now free.
	direntDeleted = 0xE5
	// direntEscapedE5 is stored in place of a leading 0xE5 in a real name.
	direntEscapedE5 = 0x05
)

// Byte offsets of the fields in a short directory entry.
const (
	offName             = 0
	offAttributes       = 11
	offCreatedTenths    = 13
	offCreatedTime      = 14
	offCreatedDate      = 16
	offLastAccessedDate = 18
	offFirstClusterHigh = 20
	offLastModifiedTime = 22
	offLastModifiedDate = 24
	offFirstClusterLow  = 26
	offFileSize         = 28
)

// Dirent is the raw on-disk representation of a directory entry. The same
// 32 bytes hold either a short (8.3) entry or a long file name fragment;
// accessors read and write the fields in place.
type Dirent [DirentSize]byte

// ShortName returns the padded 11-byte name of a short entry.
func (d *Dirent) ShortName() [11]byte {
	var name [11]byte
	copy(name[:], d[offName:offName+11])
	return name
}

func (d *Dirent) SetShortName(name [11]byte) {
	copy(d[offName:offName+11], name[:])
}

func (d *Dirent) Attributes() uint8 {
	return d[offAttributes]
}

func (d *Dirent) SetAttributes(attributes uint8) {
	d[offAttributes] = attributes
}

// IsFree determines if the entry is unused, either because it was never
// allocated or because it was deleted.
func (d *Dirent) IsFree() bool {
	return d[0] == direntFree || d[0] == direntDeleted
}

// IsLongName determines if this entry is a long file name fragment.
func (d *Dirent) IsLongName() bool {
	return d[offAttributes] == AttrLongName
}

func (d *Dirent) IsVolumeLabel() bool {
	return !d.IsLongName() && d[offAttributes]&AttrVolumeLabel != 0
}

func (d *Dirent) IsDirectory() bool {
	return !d.IsLongName() && d[offAttributes]&AttrDirectory != 0
}

// IsDotEntry determines if this is the "." or ".." entry of a subdirectory.
func (d *Dirent) IsDotEntry() bool {
	name := d.ShortName()
	return name == DotName || name == DotDotName
}

// IsLive determines if this entry describes a file or directory that exists,
// i.e. it's not free, a long name fragment, the volume label, or a dot entry.
func (d *Dirent) IsLive() bool {
	return !d.IsFree() && !d.IsLongName() && !d.IsVolumeLabel() && !d.IsDotEntry()
}

// FirstCluster returns the starting cluster of the entry. Only the low 16 bits
// are used since FAT12 and FAT16 have no use for the high word.
func (d *Dirent) FirstCluster() ClusterID {
	return ClusterID(binary.LittleEndian.Uint16(d[offFirstClusterLow:]))
}

func (d *Dirent) SetFirstCluster(cluster ClusterID) {
	binary.LittleEndian.PutUint16(d[offFirstClusterLow:], uint16(cluster))
	binary.LittleEndian.PutUint16(d[offFirstClusterHigh:], uint16(cluster>>16))
}

func (d *Dirent) Size() uint32 {
	return binary.LittleEndian.Uint32(d[offFileSize:])
}

func (d *Dirent) SetSize(size uint32) {
	binary.LittleEndian.PutUint32(d[offFileSize:], size)
}

// SetCreatedAt sets the creation date and time. The tenths-of-a-second field
// is always zero.
func (d *Dirent) SetCreatedAt(t time.Time) {
	date, clock := PackTimestamp(t)
	d[offCreatedTenths] = 0
	binary.LittleEndian.PutUint16(d[offCreatedTime:], clock)
	binary.LittleEndian.PutUint16(d[offCreatedDate:], date)
}

// SetLastAccessedAt sets the last access date. FAT doesn't store the time.
func (d *Dirent) SetLastAccessedAt(t time.Time) {
	date, _ := PackTimestamp(t)
	binary.LittleEndian.PutUint16(d[offLastAccessedDate:], date)
}

func (d *Dirent) SetLastModifiedAt(t time.Time) {
	date, clock := PackTimestamp(t)
	binary.LittleEndian.PutUint16(d[offLastModifiedTime:], clock)
	binary.LittleEndian.PutUint16(d[offLastModifiedDate:], date)
}

func (d *Dirent) LastModifiedAt() time.Time {
	return UnpackTimestamp(
		binary.LittleEndian.Uint16(d[offLastModifiedDate:]),
		binary.LittleEndian.Uint16(d[offLastModifiedTime:]),
	)
}

// DisplayName returns the short name in "NAME.EXT" form, without padding.
func (d *Dirent) DisplayName() string {
	name := d.ShortName()
	if name[0] == direntEscapedE5 {
		name[0] = direntDeleted
	}

	base := strings.TrimRight(string(name[:8]), " ")
	extension := strings.TrimRight(string(name[8:]), " ")
	if extension == "" {
		return base
	}
	return base + "." + extension
}

// Equal determines if two entries are byte-for-byte identical.
func (d *Dirent) Equal(other *Dirent) bool {
	return bytes.Equal(d[:], other[:])
}
