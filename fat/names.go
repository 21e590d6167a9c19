package fat

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dargueta/vvfat/errors"
	"golang.org/x/text/encoding/unicode"
)

// MaxLongNameUnits is the longest name, in UTF-16 code units, that is stored
// in long file name fragments. Longer names are truncated.
const MaxLongNameUnits = 129

// longNameUnitsPerEntry is the number of UTF-16 code units in one fragment.
const longNameUnitsPerEntry = 13

// maxLongNameFragments is the most fragments a single long name can use.
const maxLongNameFragments = 20

// longNameLastFragment is set in the sequence byte of the fragment holding the
// end of the name, which is the first one stored on disk.
const longNameLastFragment = 0x40

// offLongNameChecksum is where a fragment stores the checksum of its short name.
const offLongNameChecksum = 13

// longNameCharOffsets gives the byte offset of every UTF-16 code unit in a
// fragment, in name order.
var longNameCharOffsets = [longNameUnitsPerEntry]int{
	1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30,
}

// maxShortNameAttempts bounds the number of mangled candidates tried before
// giving up on finding a unique short name.
const maxShortNameAttempts = 100000

// shortNameSpecials are the punctuation characters allowed in a short name.
const shortNameSpecials = "!#$%&'()-@^_`{}~"

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DotName and DotDotName are the short names of a subdirectory's "." and ".."
// entries.
var DotName = [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
var DotDotName = [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// PadLabel converts `label` into an 11-byte, space-padded volume label.
func PadLabel(label string) [11]byte {
	var padded [11]byte
	for i := range padded {
		padded[i] = ' '
	}

	runes := []rune(label)
	for i := 0; i < len(runes) && i < len(padded); i++ {
		if runes[i] == ' ' {
			continue
		}
		padded[i] = sanitizeShortNameRune(runes[i])
	}
	return padded
}

func sanitizeShortNameRune(r rune) byte {
	switch {
	case r >= 'a' && r <= 'z':
		return byte(r - 'a' + 'A')
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return byte(r)
	case r <= ' ' || r > 0x7F:
		return '_'
	case strings.ContainsRune(shortNameSpecials, r):
		return byte(r)
	default:
		return '_'
	}
}

// BaseShortName derives an 8.3 name from `filename` without checking for
// collisions. Leading dots are dropped. The base is everything up to the next
// dot, cut to eight characters; the extension is up to three characters after
// the last dot.
func BaseShortName(filename string) [11]byte {
	var name [11]byte
	for i := range name {
		name[i] = ' '
	}

	runes := []rune(strings.TrimLeft(filename, "."))
	if len(runes) == 0 {
		name[0] = '_'
		return name
	}

	baseEnd := 1
	for baseEnd < len(runes) && baseEnd < 8 && runes[baseEnd] != '.' {
		baseEnd++
	}
	for i := 0; i < baseEnd; i++ {
		name[i] = sanitizeShortNameRune(runes[i])
	}

	if baseEnd < len(runes) {
		lastDot := len(runes) - 1
		for lastDot > 0 && runes[lastDot] != '.' {
			lastDot--
		}
		if lastDot > 0 {
			extension := runes[lastDot+1:]
			for i := 0; i < len(extension) && i < 3; i++ {
				name[8+i] = sanitizeShortNameRune(extension[i])
			}
		}
	}
	return name
}

// mangleShortName advances `name` to the next candidate in the collision
// sequence. Trailing spaces in the base become '~' so all eight characters are
// used, then the numeric tail ending at the eighth character is incremented.
func mangleShortName(name *[11]byte) {
	if name[7] == ' ' {
		for i := 6; i > 0 && name[i] == ' '; i-- {
			name[i] = '~'
		}
	}

	i := 7
	for ; i > 0 && name[i] == '9'; i-- {
		name[i] = '0'
	}
	if i > 0 {
		if name[i] < '0' || name[i] > '9' {
			name[i] = '0'
		} else {
			name[i]++
		}
	}
}

// ShortName derives a unique 8.3 name for `filename`. `exists` reports whether
// a candidate is already taken in the same directory.
func ShortName(filename string, exists func(name [11]byte) bool) ([11]byte, error) {
	name := BaseShortName(filename)
	for attempt := 0; exists(name); attempt++ {
		if attempt >= maxShortNameAttempts {
			return name, errors.ErrExists.WithMessage(
				fmt.Sprintf(
					"no unique short name for %q after %d attempts",
					filename,
					maxShortNameAttempts))
		}
		mangleShortName(&name)
	}
	return name, nil
}

// Checksum computes the VFAT checksum of an 11-byte short name.
func Checksum(name [11]byte) byte {
	var sum byte
	for _, b := range name {
		sum = ((sum & 1) << 7) + (sum >> 1) + b
	}
	return sum
}

// LongNameEntries encodes `longName` as a sequence of long file name fragments
// in on-disk order, i.e. the fragment holding the end of the name comes first.
// Each fragment carries `checksum`, which must be the checksum of the short
// entry that follows them.
func LongNameEntries(longName string, checksum byte) ([]Dirent, error) {
	encoded, err := utf16le.NewEncoder().String(longName)
	if err != nil {
		return nil, errors.ErrInvalidArgument.Wrap(err)
	}

	units := make([]uint16, 0, len(encoded)/2+longNameUnitsPerEntry)
	for i := 0; i+1 < len(encoded); i += 2 {
		units = append(units, uint16(encoded[i])|uint16(encoded[i+1])<<8)
	}
	if len(units) == 0 {
		return nil, errors.ErrInvalidArgument.WithMessage("long name is empty")
	}

	if len(units) > MaxLongNameUnits {
		units = units[:MaxLongNameUnits]
		// Don't leave half of a surrogate pair at the end.
		if last := units[len(units)-1]; last >= 0xD800 && last < 0xDC00 {
			units = units[:len(units)-1]
		}
	}

	units = append(units, 0)
	for len(units)%longNameUnitsPerEntry != 0 {
		units = append(units, 0xFFFF)
	}

	count := len(units) / longNameUnitsPerEntry
	entries := make([]Dirent, count)
	for i := range entries {
		sequence := count - i
		entry := &entries[i]

		entry[0] = byte(sequence)
		if i == 0 {
			entry[0] |= longNameLastFragment
		}
		entry[offAttributes] = AttrLongName
		entry[offLongNameChecksum] = checksum

		chunk := units[(sequence-1)*longNameUnitsPerEntry : sequence*longNameUnitsPerEntry]
		for k, offset := range longNameCharOffsets {
			binary.LittleEndian.PutUint16(entry[offset:], chunk[k])
		}
	}
	return entries, nil
}

// ReadLongName reconstructs the long name of the short entry at
// entries[index] from the fragments immediately before it, stopping at
// `lowerBound`. It returns false if no valid chain precedes the entry: a
// fragment is missing, out of sequence, or has the wrong checksum.
func ReadLongName(entries []Dirent, index, lowerBound int) (string, bool) {
	short := &entries[index]
	checksum := Checksum(short.ShortName())

	var units []uint16
	for sequence := 1; ; sequence++ {
		i := index - sequence
		if i < lowerBound || sequence > maxLongNameFragments {
			return "", false
		}

		fragment := &entries[i]
		if !fragment.IsLongName() ||
			int(fragment[0]&0x3F) != sequence ||
			fragment[offLongNameChecksum] != checksum {
			return "", false
		}

		for _, offset := range longNameCharOffsets {
			units = append(units, binary.LittleEndian.Uint16(fragment[offset:]))
		}
		if fragment[0]&longNameLastFragment != 0 {
			break
		}
	}

	for i, unit := range units {
		if unit == 0 {
			units = units[:i]
			break
		}
	}
	if len(units) == 0 {
		return "", false
	}

	raw := make([]byte, len(units)*2)
	for i, unit := range units {
		binary.LittleEndian.PutUint16(raw[i*2:], unit)
	}

	decoded, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// EntryName returns the name of the short entry at entries[index]: its long
// name if a valid chain precedes it, otherwise its short name.
func EntryName(entries []Dirent, index, lowerBound int) string {
	name, ok := ReadLongName(entries, index, lowerBound)
	if ok {
		return name
	}
	return entries[index].DisplayName()
}
