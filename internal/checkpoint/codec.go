package checkpoint

import (
	"fmt"
	"math"
	"sort"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/model"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// formatVersion is bumped whenever a field changes meaning.
const formatVersion = 1

// Checkpoint fields.
const (
	fieldWeightsFirst  protowire.Number = 1
	fieldWeightsSecond protowire.Number = 2
	fieldOptimFirst    protowire.Number = 3
	fieldOptimSecond   protowire.Number = 4
	fieldFrames        protowire.Number = 5
	fieldFramesFirst   protowire.Number = 6
	fieldFramesSecond  protowire.Number = 7
	fieldStat          protowire.Number = 8
	fieldFlag          protowire.Number = 9
	fieldSavedAt       protowire.Number = 10
	fieldFormatVersion protowire.Number = 11
)

// Params fields.
const (
	fieldParamsVersion protowire.Number = 1
	fieldParamsLayer   protowire.Number = 2
)

// Layer fields.
const (
	fieldLayerRows protowire.Number = 1
	fieldLayerCols protowire.Number = 2
	fieldLayerW    protowire.Number = 3
	fieldLayerB    protowire.Number = 4
)

// OptimizerState fields.
const (
	fieldOptimStep      protowire.Number = 1
	fieldOptimSquareAvg protowire.Number = 2
	fieldOptimMomentum  protowire.Number = 3
)

// Map entry fields.
const (
	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2
)

// Marshal encodes c in protobuf wire format.
func Marshal(c *Checkpoint) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldFormatVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, formatVersion)

	weightFields := [core.NumPositions]protowire.Number{fieldWeightsFirst, fieldWeightsSecond}
	optimFields := [core.NumPositions]protowire.Number{fieldOptimFirst, fieldOptimSecond}
	frameFields := [core.NumPositions]protowire.Number{fieldFramesFirst, fieldFramesSecond}
	for _, pos := range core.Positions {
		b = protowire.AppendTag(b, weightFields[pos], protowire.BytesType)
		b = protowire.AppendBytes(b, MarshalParams(c.Weights[pos]))
		b = protowire.AppendTag(b, optimFields[pos], protowire.BytesType)
		b = protowire.AppendBytes(b, marshalOptimizer(c.Optimizer[pos]))
		b = protowire.AppendTag(b, frameFields[pos], protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.PositionFrames[pos]))
	}
	b = protowire.AppendTag(b, fieldFrames, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Frames))

	for _, k := range sortedKeys(c.Stats) {
		var e []byte
		e = protowire.AppendTag(e, fieldEntryKey, protowire.BytesType)
		e = protowire.AppendString(e, k)
		e = protowire.AppendTag(e, fieldEntryValue, protowire.Fixed64Type)
		e = protowire.AppendFixed64(e, math.Float64bits(c.Stats[k]))
		b = protowire.AppendTag(b, fieldStat, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	}
	for _, k := range sortedKeys(c.Flags) {
		var e []byte
		e = protowire.AppendTag(e, fieldEntryKey, protowire.BytesType)
		e = protowire.AppendString(e, k)
		e = protowire.AppendTag(e, fieldEntryValue, protowire.BytesType)
		e = protowire.AppendString(e, c.Flags[k])
		b = protowire.AppendTag(b, fieldFlag, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	}

	ts, err := proto.Marshal(timestamppb.New(c.SavedAt))
	if err != nil {
		return nil, fmt.Errorf("marshal saved_at: %w", err)
	}
	b = protowire.AppendTag(b, fieldSavedAt, protowire.BytesType)
	b = protowire.AppendBytes(b, ts)
	return b, nil
}

// Unmarshal decodes a checkpoint written by Marshal.
func Unmarshal(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{Stats: map[string]float64{}, Flags: map[string]string{}}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldFormatVersion && typ == protowire.VarintType:
			ver, n := protowire.ConsumeVarint(v)
			if n >= 0 && ver != formatVersion {
				return n, fmt.Errorf("%w: format version %d", ErrCorrupt, ver)
			}
			return n, nil
		case (num == fieldWeightsFirst || num == fieldWeightsSecond) && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			p, err := UnmarshalParams(msg)
			c.Weights[positionOf(num, fieldWeightsFirst)] = p
			return n, err
		case (num == fieldOptimFirst || num == fieldOptimSecond) && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			s, err := unmarshalOptimizer(msg)
			c.Optimizer[positionOf(num, fieldOptimFirst)] = s
			return n, err
		case num == fieldFrames && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			c.Frames = int64(x)
			return n, nil
		case (num == fieldFramesFirst || num == fieldFramesSecond) && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			c.PositionFrames[positionOf(num, fieldFramesFirst)] = int64(x)
			return n, nil
		case (num == fieldStat || num == fieldFlag) && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			return n, decodeEntry(msg, num == fieldStat, c)
		case num == fieldSavedAt && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			ts := &timestamppb.Timestamp{}
			if err := proto.Unmarshal(msg, ts); err != nil {
				return n, fmt.Errorf("%w: saved_at: %v", ErrCorrupt, err)
			}
			c.SavedAt = ts.AsTime()
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalParams encodes one weight snapshot. Evaluation snapshots hold
// exactly this message.
func MarshalParams(p model.Params) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldParamsVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, p.Version)
	for _, l := range p.Layers {
		var lb []byte
		lb = protowire.AppendTag(lb, fieldLayerRows, protowire.VarintType)
		lb = protowire.AppendVarint(lb, uint64(l.Rows))
		lb = protowire.AppendTag(lb, fieldLayerCols, protowire.VarintType)
		lb = protowire.AppendVarint(lb, uint64(l.Cols))
		lb = appendPackedDoubles(lb, fieldLayerW, l.W)
		lb = appendPackedDoubles(lb, fieldLayerB, l.B)
		b = protowire.AppendTag(b, fieldParamsLayer, protowire.BytesType)
		b = protowire.AppendBytes(b, lb)
	}
	return b
}

// UnmarshalParams decodes a message written by MarshalParams.
func UnmarshalParams(b []byte) (model.Params, error) {
	var p model.Params
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldParamsVersion && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			p.Version = x
			return n, nil
		case num == fieldParamsLayer && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			l, err := unmarshalLayer(msg)
			p.Layers = append(p.Layers, l)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	return p, err
}

func unmarshalLayer(b []byte) (model.Layer, error) {
	var l model.Layer
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldLayerRows && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			l.Rows = int(x)
			return n, nil
		case num == fieldLayerCols && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			l.Cols = int(x)
			return n, nil
		case (num == fieldLayerW || num == fieldLayerB) && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			vals, err := consumePackedDoubles(msg)
			if num == fieldLayerW {
				l.W = vals
			} else {
				l.B = vals
			}
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if err != nil {
		return l, err
	}
	if len(l.W) != l.Rows*l.Cols || len(l.B) != l.Rows {
		return l, fmt.Errorf("%w: layer %dx%d has %d weights and %d biases", ErrCorrupt, l.Rows, l.Cols, len(l.W), len(l.B))
	}
	return l, nil
}

func marshalOptimizer(s model.OptimizerState) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOptimStep, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Step)
	b = protowire.AppendTag(b, fieldOptimSquareAvg, protowire.BytesType)
	b = protowire.AppendBytes(b, MarshalParams(s.SquareAvg))
	b = protowire.AppendTag(b, fieldOptimMomentum, protowire.BytesType)
	b = protowire.AppendBytes(b, MarshalParams(s.Momentum))
	return b
}

func unmarshalOptimizer(b []byte) (model.OptimizerState, error) {
	var s model.OptimizerState
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldOptimStep && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			s.Step = x
			return n, nil
		case (num == fieldOptimSquareAvg || num == fieldOptimMomentum) && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			p, err := UnmarshalParams(msg)
			if num == fieldOptimSquareAvg {
				s.SquareAvg = p
			} else {
				s.Momentum = p
			}
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	return s, err
}

func decodeEntry(b []byte, stat bool, c *Checkpoint) error {
	var key, str string
	var num float64
	err := walk(b, func(f protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case f == fieldEntryKey && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			key = s
			return n, nil
		case f == fieldEntryValue && typ == protowire.Fixed64Type:
			x, n := protowire.ConsumeFixed64(v)
			num = math.Float64frombits(x)
			return n, nil
		case f == fieldEntryValue && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			str = s
			return n, nil
		}
		return protowire.ConsumeFieldValue(f, typ, v), nil
	})
	if err != nil {
		return err
	}
	if stat {
		c.Stats[key] = num
	} else {
		c.Flags[key] = str
	}
	return nil
}

// walk calls fn for every field in b. fn receives the bytes after the tag
// and returns how many it consumed; a negative count is a wire error.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorrupt, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func appendPackedDoubles(b []byte, num protowire.Number, vals []float64) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, len(vals)*8)
	for _, v := range vals {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func consumePackedDoubles(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: packed doubles of %d bytes", ErrCorrupt, len(b))
	}
	out := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		x, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		out = append(out, math.Float64frombits(x))
		b = b[n:]
	}
	return out, nil
}

func positionOf(num, firstField protowire.Number) core.RoundPosition {
	if num == firstField {
		return core.PositionFirst
	}
	return core.PositionSecond
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
