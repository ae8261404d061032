package task

import (
	"fmt"
	"image"
)

type resolver interface {
	resolve(index int, generation uint64) (Result, error)
}

// Ref borrows one record of a task's result buffer. It stays valid until
// the task's next successful FetchResults; after that every accessor
// returns ErrStaleResult.
type Ref struct {
	src        resolver
	index      int
	generation uint64
}

// Index is the record's position in the buffer it was taken from
func (r Ref) Index() int { return r.index }

func (r Ref) Result() (Result, error) {
	if r.src == nil {
		return nil, ErrStaleResult
	}
	return r.src.resolve(r.index, r.generation)
}

func (r Ref) Location() (image.Rectangle, error) {
	res, err := r.Result()
	if err != nil {
		return image.Rectangle{}, err
	}
	return res.Location(), nil
}

// buffer owns fetched records. Every replace bumps the generation, which
// invalidates outstanding Refs.
type buffer[R Result] struct {
	items      []R
	generation uint64
}

func (b *buffer[R]) replace(items []R) {
	b.items = items
	b.generation++
}

func (b *buffer[R]) len() int { return len(b.items) }

func (b *buffer[R]) ref(index int) (Ref, error) {
	if index < 0 || index >= len(b.items) {
		return Ref{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(b.items))
	}
	return Ref{src: b, index: index, generation: b.generation}, nil
}

func (b *buffer[R]) resolve(index int, generation uint64) (Result, error) {
	if generation != b.generation {
		return nil, ErrStaleResult
	}
	if index < 0 || index >= len(b.items) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(b.items))
	}
	return b.items[index], nil
}

func (b *buffer[R]) snapshot() []R {
	out := make([]R, len(b.items))
	copy(out, b.items)
	return out
}

func (b *buffer[R]) results() []Result {
	out := make([]Result, len(b.items))
	for i, r := range b.items {
		out[i] = r
	}
	return out
}
