// Package array implements a growable, indexable container of fixed-size
// records.
//
// Records are addressed by index only. Any call that can grow the container
// may move the backing storage, so pointers returned by [Array.At] and friends
// are only valid until the next mutating call. Callers that need to remember a
// record across mutations must keep its index.
package array

import (
	"fmt"

	"github.com/dargueta/vvfat/errors"
)

// growthIncrement is the number of records added to the capacity whenever the
// backing storage has to be reallocated.
const growthIncrement = 32

// Array is a homogeneous sequence of records with a logical length separate
// from its allocated capacity.
type Array[T any] struct {
	items []T
	limit int
}

// New creates an empty array. If `limit` is positive, the array refuses to
// grow past that many records and returns [errors.ErrNoBufferSpace] instead.
func New[T any](limit int) *Array[T] {
	return &Array[T]{limit: limit}
}

// Len returns the logical length of the array.
func (a *Array[T]) Len() int {
	return len(a.items)
}

// Items returns the records in [0, Len()). The slice aliases the array's
// storage and is invalidated by any mutating call.
func (a *Array[T]) Items() []T {
	return a.items
}

// At returns a pointer to the record at `index`. It panics if the index is out
// of bounds, the same way a slice would.
func (a *Array[T]) At(index int) *T {
	return &a.items[index]
}

// ensureLength grows the logical length to `length` records, zero-filling the
// newly exposed region.
func (a *Array[T]) ensureLength(length int) error {
	if length <= len(a.items) {
		return nil
	}
	if a.limit > 0 && length > a.limit {
		return errors.ErrNoBufferSpace.WithMessage(
			fmt.Sprintf("array can't hold %d records, limit is %d", length, a.limit))
	}

	if length > cap(a.items) {
		newCapacity := length + growthIncrement
		if a.limit > 0 && newCapacity > a.limit {
			newCapacity = a.limit
		}
		grown := make([]T, len(a.items), newCapacity)
		copy(grown, a.items)
		a.items = grown
	}

	oldLength := len(a.items)
	a.items = a.items[:length]

	var zero T
	for i := oldLength; i < length; i++ {
		a.items[i] = zero
	}
	return nil
}

// GetOrGrow returns a pointer to the record at `index`, growing the array
// first if `index` is past the end. Growth never shrinks the array.
func (a *Array[T]) GetOrGrow(index int) (*T, error) {
	if index < 0 {
		return nil, errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("negative index %d", index))
	}

	err := a.ensureLength(index + 1)
	if err != nil {
		return nil, err
	}
	return &a.items[index], nil
}

// Append adds a zeroed record to the end of the array and returns a pointer to
// it.
func (a *Array[T]) Append() (*T, error) {
	return a.GetOrGrow(len(a.items))
}

// Insert shifts the records at and after `index` forward by `count` slots and
// returns a pointer to the first of the new, zeroed slots. Indices at or after
// `index` held by the caller are invalidated.
func (a *Array[T]) Insert(index, count int) (*T, error) {
	if index < 0 || index > len(a.items) {
		return nil, errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("insert index %d not in [0, %d]", index, len(a.items)))
	}
	if count <= 0 {
		return nil, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("insert count must be positive, got %d", count))
	}

	oldLength := len(a.items)
	err := a.ensureLength(oldLength + count)
	if err != nil {
		return nil, err
	}

	copy(a.items[index+count:], a.items[index:oldLength])

	var zero T
	for i := index; i < index+count; i++ {
		a.items[i] = zero
	}
	return &a.items[index], nil
}

// Roll moves the `count` contiguous records starting at `from` so that they
// start at `to`. Everything between the old and new positions shifts to fill
// the gap; the relative order of all other records is preserved.
func (a *Array[T]) Roll(to, from, count int) error {
	length := len(a.items)
	if count <= 0 {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("roll count must be positive, got %d", count))
	}
	if to < 0 || from < 0 || to+count > length || from+count > length {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't roll %d records from %d to %d in array of length %d",
				count,
				from,
				to,
				length))
	}
	if to == from {
		return nil
	}

	block := make([]T, count)
	copy(block, a.items[from:from+count])

	if to < from {
		// Records in [to, from) move forward to make room at `to`.
		copy(a.items[to+count:from+count], a.items[to:from])
	} else {
		// Records in [from+count, to+count) move back into the gap.
		copy(a.items[from:to], a.items[from+count:to+count])
	}
	copy(a.items[to:to+count], block)
	return nil
}

// Remove deletes the record at `index`, preserving the order of everything
// else.
func (a *Array[T]) Remove(index int) error {
	length := len(a.items)
	if index < 0 || index >= length {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("remove index %d not in [0, %d)", index, length))
	}

	err := a.Roll(length-1, index, 1)
	if err != nil {
		return err
	}

	var zero T
	a.items[length-1] = zero
	a.items = a.items[:length-1]
	return nil
}

// Truncate drops every record at or after `length`. It does nothing if the
// array is already shorter.
func (a *Array[T]) Truncate(length int) {
	if length < 0 {
		length = 0
	}
	if length >= len(a.items) {
		return
	}

	var zero T
	for i := length; i < len(a.items); i++ {
		a.items[i] = zero
	}
	a.items = a.items[:length]
}
