package fat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/vvfat/errors"
	"github.com/dargueta/vvfat/fat"
)

func TestNewTable__InvalidWidth(t *testing.T) {
	_, err := fat.NewTable(8, 512)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestTable__RoundTrip(t *testing.T) {
	for _, bits := range []int{12, 16, 32} {
		table, err := fat.NewTable(bits, 512)
		require.NoError(t, err, "bits=%d", bits)

		entries := table.Entries()
		for cluster := 0; cluster < entries; cluster++ {
			table.Set(fat.ClusterID(cluster), uint32(cluster*7+3))
		}
		for cluster := 0; cluster < entries; cluster++ {
			expected := uint32(cluster*7+3) & table.MaxValue()
			assert.Equalf(
				t,
				expected,
				table.Get(fat.ClusterID(cluster)),
				"bits=%d cluster=%d",
				bits,
				cluster)
		}
	}
}

func TestTable12__NeighborsIndependent(t *testing.T) {
	table, err := fat.NewTable(12, 512)
	require.NoError(t, err)

	table.Set(4, 0xABC)
	table.Set(5, 0x123)
	table.Set(6, 0xFFF)

	assert.EqualValues(t, 0xABC, table.Get(4))
	assert.EqualValues(t, 0x123, table.Get(5))
	assert.EqualValues(t, 0xFFF, table.Get(6))

	// Clusters 4 and 5 share the middle byte of their three-byte group.
	assert.Equal(t, []byte{0xBC, 0x3A, 0x12}, table.Bytes()[6:9])

	table.Set(5, 0)
	assert.EqualValues(t, 0xABC, table.Get(4))
	assert.EqualValues(t, 0xFFF, table.Get(6))
}

func TestTable32__PreservesTopNibble(t *testing.T) {
	table, err := fat.NewTable(32, 64)
	require.NoError(t, err)

	table.Bytes()[11] = 0xF0
	table.Set(2, 0x0FFFFFFF)
	assert.EqualValues(t, 0xFF, table.Bytes()[11])
	assert.EqualValues(t, 0x0FFFFFFF, table.Get(2))
}

func TestTable__Init(t *testing.T) {
	table, err := fat.NewTable(16, 512)
	require.NoError(t, err)

	table.Init(0xF8)
	assert.Equal(t, []byte{0xF8, 0xFF, 0xFF, 0xFF}, table.Bytes()[:4])

	table12, err := fat.NewTable(12, 512)
	require.NoError(t, err)

	table12.Init(0xF0)
	assert.Equal(t, []byte{0xF0, 0xFF, 0xFF}, table12.Bytes()[:3])
}

func TestTable__Classify(t *testing.T) {
	table, err := fat.NewTable(16, 512)
	require.NoError(t, err)

	assert.False(t, table.IsNextCluster(0))
	assert.False(t, table.IsNextCluster(1))
	assert.True(t, table.IsNextCluster(2))
	assert.True(t, table.IsNextCluster(0xFFEF))
	assert.True(t, table.IsBad(0xFFF0))
	assert.True(t, table.IsBad(0xFFF7))
	assert.False(t, table.IsEndOfChain(0xFFF7))
	assert.True(t, table.IsEndOfChain(0xFFF8))
	assert.True(t, table.IsEndOfChain(table.EndOfChain()))
}

func TestTable__LinkChain(t *testing.T) {
	table, err := fat.NewTable(12, 512)
	require.NoError(t, err)

	table.LinkChain(5, 9)
	assert.EqualValues(t, 6, table.Get(5))
	assert.EqualValues(t, 7, table.Get(6))
	assert.EqualValues(t, 8, table.Get(7))
	assert.EqualValues(t, 0xFFF, table.Get(8))
	assert.EqualValues(t, 0, table.Get(9))

	table.LinkChain(20, 20)
	assert.EqualValues(t, 0, table.Get(20))
}

func TestTable__ClustersInByteRange(t *testing.T) {
	table16, err := fat.NewTable(16, 512)
	require.NoError(t, err)

	first, last, ok := table16.ClustersInByteRange(4, 8)
	require.True(t, ok)
	assert.EqualValues(t, 2, first)
	assert.EqualValues(t, 3, last)

	table12, err := fat.NewTable(12, 1024)
	require.NoError(t, err)

	// The second sector of a FAT12 table starts in the middle of cluster 341.
	first, last, ok = table12.ClustersInByteRange(512, 1024)
	require.True(t, ok)
	assert.EqualValues(t, 341, first)
	// Entry 682 would need byte 1024, so it isn't part of the table.
	assert.EqualValues(t, 681, last)
	assert.Equal(t, 682, table12.Entries())

	// Three sectors hold exactly 1024 entries, the last ending on byte 1535.
	table12, err = fat.NewTable(12, 1536)
	require.NoError(t, err)
	first, last, ok = table12.ClustersInByteRange(1024, 1536)
	require.True(t, ok)
	assert.EqualValues(t, 682, first)
	assert.EqualValues(t, 1023, last)
	assert.Equal(t, 1024, table12.Entries())

	_, _, ok = table12.ClustersInByteRange(10, 10)
	assert.False(t, ok)
}
