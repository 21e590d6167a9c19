package fat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dargueta/vvfat/fat"
)

func TestDirent__Fields(t *testing.T) {
	var entry fat.Dirent
	entry.SetShortName(shortName("HELLO   TXT"))
	entry.SetAttributes(fat.AttrArchived)
	entry.SetFirstCluster(0x1234)
	entry.SetSize(12345)

	assert.Equal(t, "HELLO.TXT", entry.DisplayName())
	assert.EqualValues(t, 0x1234, entry.FirstCluster())
	assert.EqualValues(t, 12345, entry.Size())
	assert.True(t, entry.IsLive())
	assert.False(t, entry.IsDirectory())
	assert.Equal(t, []byte{0x34, 0x12}, entry[26:28])
	assert.Equal(t, []byte{0x39, 0x30, 0x00, 0x00}, entry[28:32])
}

func TestDirent__Classification(t *testing.T) {
	var free fat.Dirent
	assert.True(t, free.IsFree())
	assert.False(t, free.IsLive())

	var deleted fat.Dirent
	deleted.SetShortName(shortName("\xE5ELETED TXT"))
	assert.True(t, deleted.IsFree())

	var label fat.Dirent
	label.SetShortName(fat.PadLabel("QEMU VVFAT"))
	label.SetAttributes(fat.AttrVolumeLabel | fat.AttrArchived)
	assert.True(t, label.IsVolumeLabel())
	assert.False(t, label.IsLive())

	var dot fat.Dirent
	dot.SetShortName(fat.DotDotName)
	dot.SetAttributes(fat.AttrDirectory)
	assert.True(t, dot.IsDotEntry())
	assert.True(t, dot.IsDirectory())
	assert.False(t, dot.IsLive())

	var lfn fat.Dirent
	lfn[0] = 0x41
	lfn.SetAttributes(fat.AttrLongName)
	assert.True(t, lfn.IsLongName())
	assert.False(t, lfn.IsDirectory())
	assert.False(t, lfn.IsVolumeLabel())
}

func TestDirent__EscapedE5(t *testing.T) {
	var entry fat.Dirent
	entry.SetShortName(shortName("\x05BC     DAT"))
	assert.False(t, entry.IsFree())
	assert.Equal(t, "\xE5BC.DAT", entry.DisplayName())
}

func TestDirent__LastModified(t *testing.T) {
	var entry fat.Dirent
	stamp := time.Date(2021, time.March, 14, 15, 9, 27, 0, time.Local)
	entry.SetLastModifiedAt(stamp)
	assert.True(t, entry.LastModifiedAt().Equal(stamp.Add(-time.Second)))
}

func TestPackTimestamp(t *testing.T) {
	date, clock := fat.PackTimestamp(time.Date(1999, time.December, 31, 23, 59, 58, 0, time.Local))
	assert.EqualValues(t, (19<<9)|(12<<5)|31, date)
	assert.EqualValues(t, (23<<11)|(59<<5)|29, clock)

	date, clock = fat.PackTimestamp(time.Date(1970, time.January, 1, 0, 0, 0, 0, time.Local))
	assert.EqualValues(t, (1<<5)|1, date)
	assert.EqualValues(t, 0, clock)

	date, _ = fat.PackTimestamp(time.Date(2200, time.January, 1, 0, 0, 0, 0, time.Local))
	assert.EqualValues(t, (127<<9)|(12<<5)|31, date)
}
