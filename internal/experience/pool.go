package experience

import (
	"fmt"
	"sync/atomic"
)

// Segment is a copy of one slot: T steps of every field, feature fields
// flattened row-major.
type Segment struct {
	Done          []bool
	EpisodeReturn []float32
	Target        []float32
	State         []float32
	Move          []float32
	History       []float32
}

// Pool is the pre-allocated slot storage of one (device, round position).
// Each field is a single contiguous region of numSlots x T x width values.
// The pool does no locking: the slot queues guarantee a slot has a single
// owner at a time.
type Pool struct {
	layout   Layout
	numSlots int
	mem      []float32
	fields   [NumFields][]float32
	release  func() error
	closed   atomic.Bool
}

// NewPool allocates storage for numSlots segments.
func NewPool(layout Layout, numSlots int) (*Pool, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if numSlots <= 0 {
		return nil, fmt.Errorf("%w: %d slots", ErrInvalidLayout, numSlots)
	}

	total := numSlots * layout.T * layout.StepWidth()
	mem, release, err := allocate(total)
	if err != nil {
		return nil, fmt.Errorf("allocate %d values: %w", total, err)
	}

	p := &Pool{layout: layout, numSlots: numSlots, mem: mem, release: release}
	off := 0
	for f := Field(0); f < NumFields; f++ {
		n := numSlots * layout.T * layout.Width(f)
		p.fields[f] = mem[off : off+n : off+n]
		off += n
	}
	return p, nil
}

func (p *Pool) Layout() Layout { return p.layout }

func (p *Pool) NumSlots() int { return p.numSlots }

// Bytes returns the size of the backing storage.
func (p *Pool) Bytes() int { return len(p.mem) * 4 }

// View returns the live region of field f for slot. Writes through it land in
// the pool.
func (p *Pool) View(slot int, f Field) []float32 {
	n := p.layout.T * p.layout.Width(f)
	return p.fields[f][slot*n : (slot+1)*n : (slot+1)*n]
}

// Write stores values as step t of field f in slot.
func (p *Pool) Write(slot int, f Field, t int, values []float32) error {
	if err := p.check(slot); err != nil {
		return err
	}
	w := p.layout.Width(f)
	if t < 0 || t >= p.layout.T || len(values) != w {
		return fmt.Errorf("write %s step %d: %d values, want %d", f, t, len(values), w)
	}
	copy(p.View(slot, f)[t*w:(t+1)*w], values)
	return nil
}

// WriteSegment stores exactly T records into slot.
func (p *Pool) WriteSegment(slot int, records []Record) error {
	if err := p.check(slot); err != nil {
		return err
	}
	if len(records) != p.layout.T {
		return fmt.Errorf("%w: got %d, want %d", ErrSegmentLength, len(records), p.layout.T)
	}
	done := p.View(slot, FieldDone)
	ret := p.View(slot, FieldEpisodeReturn)
	target := p.View(slot, FieldTarget)
	for t, r := range records {
		done[t] = 0
		if r.Done {
			done[t] = 1
		}
		ret[t] = r.EpisodeReturn
		target[t] = r.Target
		for _, fv := range [...]struct {
			f Field
			v []float32
		}{{FieldState, r.State}, {FieldMove, r.Move}, {FieldHistory, r.History}} {
			if err := p.Write(slot, fv.f, t, fv.v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read copies slot out of the pool.
func (p *Pool) Read(slot int) (Segment, error) {
	if err := p.check(slot); err != nil {
		return Segment{}, err
	}
	done := p.View(slot, FieldDone)
	seg := Segment{
		Done:          make([]bool, len(done)),
		EpisodeReturn: append([]float32(nil), p.View(slot, FieldEpisodeReturn)...),
		Target:        append([]float32(nil), p.View(slot, FieldTarget)...),
		State:         append([]float32(nil), p.View(slot, FieldState)...),
		Move:          append([]float32(nil), p.View(slot, FieldMove)...),
		History:       append([]float32(nil), p.View(slot, FieldHistory)...),
	}
	for i, v := range done {
		seg.Done[i] = v != 0
	}
	return seg, nil
}

// Close releases the backing storage. The pool must not be used afterwards.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.fields = [NumFields][]float32{}
	p.mem = nil
	if p.release != nil {
		return p.release()
	}
	return nil
}

func (p *Pool) check(slot int) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if slot < 0 || slot >= p.numSlots {
		return fmt.Errorf("%w: %d of %d", ErrSlotOutOfRange, slot, p.numSlots)
	}
	return nil
}
