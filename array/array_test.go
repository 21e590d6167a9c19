package array_test

import (
	"testing"

	"github.com/dargueta/vvfat/array"
	"github.com/dargueta/vvfat/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFilledArray(t *testing.T, length int) *array.Array[int] {
	arr := array.New[int](0)
	for i := 0; i < length; i++ {
		item, err := arr.Append()
		require.NoError(t, err)
		*item = i
	}
	require.Equal(t, length, arr.Len())
	return arr
}

func TestArray__GetOrGrow__ZeroFills(t *testing.T) {
	arr := array.New[int](0)

	item, err := arr.GetOrGrow(40)
	require.NoError(t, err)
	*item = 7

	assert.Equal(t, 41, arr.Len())
	for i := 0; i < 40; i++ {
		assert.Zero(t, *arr.At(i), "record %d not zeroed", i)
	}
	assert.Equal(t, 7, *arr.At(40))

	// Growing to a smaller index is a no-op.
	_, err = arr.GetOrGrow(3)
	require.NoError(t, err)
	assert.Equal(t, 41, arr.Len())
	assert.Equal(t, 7, *arr.At(40))
}

func TestArray__GetOrGrow__NegativeIndex(t *testing.T) {
	arr := array.New[int](0)
	_, err := arr.GetOrGrow(-1)
	assert.ErrorIs(t, err, errors.ErrArgumentOutOfRange)
}

func TestArray__Limit(t *testing.T) {
	arr := array.New[byte](4)
	_, err := arr.GetOrGrow(3)
	require.NoError(t, err)

	_, err = arr.Append()
	assert.ErrorIs(t, err, errors.ErrNoBufferSpace)
	assert.Equal(t, 4, arr.Len(), "failed growth must not change the length")
}

func TestArray__Insert(t *testing.T) {
	arr := newFilledArray(t, 5)

	item, err := arr.Insert(2, 3)
	require.NoError(t, err)
	*item = 100

	assert.Equal(t, []int{0, 1, 100, 0, 0, 2, 3, 4}, arr.Items())
}

func TestArray__Insert__AtEnd(t *testing.T) {
	arr := newFilledArray(t, 2)

	item, err := arr.Insert(2, 1)
	require.NoError(t, err)
	*item = 9
	assert.Equal(t, []int{0, 1, 9}, arr.Items())
}

func TestArray__Insert__Invalid(t *testing.T) {
	arr := newFilledArray(t, 2)

	_, err := arr.Insert(3, 1)
	assert.ErrorIs(t, err, errors.ErrArgumentOutOfRange)
	_, err = arr.Insert(0, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestArray__Remove(t *testing.T) {
	arr := newFilledArray(t, 6)

	require.NoError(t, arr.Remove(0))
	require.NoError(t, arr.Remove(2))
	require.NoError(t, arr.Remove(arr.Len()-1))

	assert.Equal(t, []int{1, 2, 4}, arr.Items())
	assert.ErrorIs(t, arr.Remove(3), errors.ErrArgumentOutOfRange)
}

type rollTestCase struct {
	Name     string
	To       int
	From     int
	Count    int
	Expected []int
}

func TestArray__Roll(t *testing.T) {
	tests := []rollTestCase{
		{"backward single", 1, 4, 1, []int{0, 4, 1, 2, 3, 5, 6, 7}},
		{"forward single", 5, 1, 1, []int{0, 2, 3, 4, 5, 1, 6, 7}},
		{"backward block", 0, 5, 3, []int{5, 6, 7, 0, 1, 2, 3, 4}},
		{"forward block", 4, 0, 3, []int{3, 4, 5, 6, 0, 1, 2, 7}},
		{"overlapping forward", 2, 1, 3, []int{0, 4, 1, 2, 3, 5, 6, 7}},
		{"same position", 3, 3, 2, []int{0, 1, 2, 3, 4, 5, 6, 7}},
		{"to end", 7, 2, 1, []int{0, 1, 3, 4, 5, 6, 7, 2}},
	}

	for _, test := range tests {
		t.Run(
			test.Name,
			func(t *testing.T) {
				arr := newFilledArray(t, 8)
				require.NoError(t, arr.Roll(test.To, test.From, test.Count))
				assert.Equal(t, test.Expected, arr.Items())
			},
		)
	}
}

// Every legal roll must relocate the block contiguously at `to` and leave the
// remaining records in their original relative order.
func TestArray__Roll__PreservesOrder(t *testing.T) {
	const length = 9

	for count := 1; count <= length; count++ {
		for from := 0; from+count <= length; from++ {
			for to := 0; to+count <= length; to++ {
				arr := newFilledArray(t, length)
				require.NoError(t, arr.Roll(to, from, count))
				items := arr.Items()

				for i := 0; i < count; i++ {
					require.Equal(
						t,
						from+i,
						items[to+i],
						"roll(%d, %d, %d): block not contiguous at destination",
						to,
						from,
						count)
				}

				rest := make([]int, 0, length-count)
				rest = append(rest, items[:to]...)
				rest = append(rest, items[to+count:]...)
				for i := 1; i < len(rest); i++ {
					require.Less(
						t,
						rest[i-1],
						rest[i],
						"roll(%d, %d, %d): other records reordered",
						to,
						from,
						count)
				}
			}
		}
	}
}

func TestArray__Roll__OutOfBounds(t *testing.T) {
	arr := newFilledArray(t, 4)

	assert.ErrorIs(t, arr.Roll(3, 0, 2), errors.ErrArgumentOutOfRange)
	assert.ErrorIs(t, arr.Roll(0, 3, 2), errors.ErrArgumentOutOfRange)
	assert.ErrorIs(t, arr.Roll(-1, 0, 1), errors.ErrArgumentOutOfRange)
	assert.ErrorIs(t, arr.Roll(0, 1, 0), errors.ErrInvalidArgument)
	assert.Equal(t, []int{0, 1, 2, 3}, arr.Items(), "failed roll modified the array")
}

func TestArray__Truncate(t *testing.T) {
	arr := newFilledArray(t, 5)
	arr.Truncate(2)
	assert.Equal(t, []int{0, 1}, arr.Items())

	arr.Truncate(10)
	assert.Equal(t, 2, arr.Len())

	item, err := arr.GetOrGrow(3)
	require.NoError(t, err)
	assert.Zero(t, *item, "records exposed again after truncation must be zeroed")
}
