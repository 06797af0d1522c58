package experience

import "errors"

var (
	// ErrStopped is returned by a queue pop that received the stop sentinel.
	ErrStopped = errors.New("slot queue stopped")
	// ErrInvalidLayout is returned when a pool is created with an unusable layout.
	ErrInvalidLayout = errors.New("invalid segment layout")
	// ErrSlotOutOfRange is returned for a slot index outside the pool.
	ErrSlotOutOfRange = errors.New("slot index out of range")
	// ErrSegmentLength is returned when a segment does not hold exactly T records.
	ErrSegmentLength = errors.New("segment length does not match unroll length")
	// ErrPoolClosed is returned by operations on a released pool.
	ErrPoolClosed = errors.New("buffer pool is closed")
)
