package fat

import (
	"fmt"

	"github.com/dargueta/vvfat/array"
	"github.com/dargueta/vvfat/errors"
)

// ClusterID is the index of a cluster. Clusters 0 and 1 are reserved; the first
// data cluster is 2.
type ClusterID = uint32

// FirstDataCluster is the lowest cluster number that can hold data.
const FirstDataCluster ClusterID = 2

// Table is a file allocation table packed into a byte buffer. Each entry is
// 12, 16 or 32 bits wide depending on the FAT version; 32-bit entries only use
// their low 28 bits.
type Table struct {
	bits     int
	maxValue uint32
	storage  *array.Array[byte]
}

// NewTable creates a zeroed table of `sizeBytes` bytes holding entries
// `bits` wide.
func NewTable(bits int, sizeBytes int) (*Table, error) {
	var maxValue uint32
	switch bits {
	case 12:
		maxValue = 0xFFF
	case 16:
		maxValue = 0xFFFF
	case 32:
		maxValue = 0x0FFFFFFF
	default:
		return nil, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("FAT entries must be 12, 16, or 32 bits wide, not %d", bits))
	}

	storage := array.New[byte](0)
	if sizeBytes > 0 {
		_, err := storage.GetOrGrow(sizeBytes - 1)
		if err != nil {
			return nil, err
		}
	}

	return &Table{
		bits:     bits,
		maxValue: maxValue,
		storage:  storage,
	}, nil
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() (*Table, error) {
	clone, err := NewTable(t.bits, t.storage.Len())
	if err != nil {
		return nil, err
	}
	copy(clone.Bytes(), t.Bytes())
	return clone, nil
}

// Bits returns the width of a single entry.
func (t *Table) Bits() int {
	return t.bits
}

// MaxValue returns the largest value an entry can hold: 0xFFF, 0xFFFF, or
// 0x0FFFFFFF.
func (t *Table) MaxValue() uint32 {
	return t.maxValue
}

// EndOfChain returns the marker written to the last cluster of a chain.
func (t *Table) EndOfChain() uint32 {
	return t.maxValue
}

// Bytes returns the table's backing storage. Writes to the slice change the
// table.
func (t *Table) Bytes() []byte {
	return t.storage.Items()
}

// Entries returns the number of entries that fit in the table, including the
// two reserved ones.
func (t *Table) Entries() int {
	return t.storage.Len() * 8 / t.bits
}

// IsEndOfChain determines if `value` marks the end of a cluster chain.
func (t *Table) IsEndOfChain(value uint32) bool {
	return value > t.maxValue-8
}

// IsBad determines if `value` is the bad-cluster marker or one of the reserved
// values just below the end-of-chain range.
func (t *Table) IsBad(value uint32) bool {
	return value >= t.maxValue-0xF && value <= t.maxValue-8
}

// IsNextCluster determines if `value` is a pointer to another cluster, as
// opposed to a free, reserved, bad, or end-of-chain marker.
func (t *Table) IsNextCluster(value uint32) bool {
	return value >= FirstDataCluster && value < t.maxValue-0xF
}

// Get decodes the entry for `cluster`.
func (t *Table) Get(cluster ClusterID) uint32 {
	data := t.storage.Items()

	switch t.bits {
	case 12:
		offset := cluster + cluster/2
		value := uint32(data[offset]) | uint32(data[offset+1])<<8
		if cluster&1 != 0 {
			return value >> 4
		}
		return value & 0xFFF
	case 16:
		offset := cluster * 2
		return uint32(data[offset]) | uint32(data[offset+1])<<8
	default:
		offset := cluster * 4
		value := uint32(data[offset]) |
			uint32(data[offset+1])<<8 |
			uint32(data[offset+2])<<16 |
			uint32(data[offset+3])<<24
		return value & 0x0FFFFFFF
	}
}

// Set encodes `value` into the entry for `cluster`, truncating it to the
// table's entry width. For 12-bit tables the nibble shared with the
// neighboring entry is preserved, as are the top four bits of 32-bit entries.
func (t *Table) Set(cluster ClusterID, value uint32) {
	data := t.storage.Items()
	value &= t.maxValue

	switch t.bits {
	case 12:
		offset := cluster + cluster/2
		if cluster&1 != 0 {
			data[offset] = (data[offset] & 0x0F) | byte(value<<4)
			data[offset+1] = byte(value >> 4)
		} else {
			data[offset] = byte(value)
			data[offset+1] = (data[offset+1] & 0xF0) | byte(value>>8)&0x0F
		}
	case 16:
		offset := cluster * 2
		data[offset] = byte(value)
		data[offset+1] = byte(value >> 8)
	default:
		offset := cluster * 4
		data[offset] = byte(value)
		data[offset+1] = byte(value >> 8)
		data[offset+2] = byte(value >> 16)
		data[offset+3] = (data[offset+3] & 0xF0) | byte(value>>24)
	}
}

// Init writes the two reserved entries. Entry 0 carries the media descriptor in
// its low byte with all other bits set; entry 1 holds the end-of-chain marker.
func (t *Table) Init(mediaDescriptor uint8) {
	t.Set(0, (t.maxValue&^0xFF)|uint32(mediaDescriptor))
	t.Set(1, t.EndOfChain())
}

// LinkChain links the clusters in [begin, end) into a linear chain terminated
// by the end-of-chain marker. It does nothing if the range is empty.
func (t *Table) LinkChain(begin, end ClusterID) {
	if end <= begin {
		return
	}
	for cluster := begin; cluster < end-1; cluster++ {
		t.Set(cluster, cluster+1)
	}
	t.Set(end-1, t.EndOfChain())
}

// ClustersInByteRange returns the inclusive range of clusters whose entries
// overlap the bytes [start, end) of the table. `ok` is false if no entry does.
func (t *Table) ClustersInByteRange(start, end int) (first, last ClusterID, ok bool) {
	if end <= start {
		return 0, 0, false
	}

	entries := t.Entries()
	firstIndex := start * 8 / t.bits
	lastIndex := (end*8 - 1) / t.bits
	if lastIndex >= entries {
		lastIndex = entries - 1
	}
	if firstIndex > lastIndex {
		return 0, 0, false
	}
	return ClusterID(firstIndex), ClusterID(lastIndex), true
}
