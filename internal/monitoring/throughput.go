package monitoring

import (
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// DefaultWindow is the number of samples averaged into a rate.
const DefaultWindow = 24

// Rates is one throughput reading in frames per second. FPS and
// PositionFPS are averaged over the window; InstantFPS covers only the last
// interval.
type Rates struct {
	FPS         float64
	InstantFPS  float64
	PositionFPS [core.NumPositions]float64
}

type frameSample struct {
	at     time.Time
	total  int64
	perPos [core.NumPositions]int64
}

// ThroughputMeter turns periodic frame counter readings into frames per
// second averaged over the last window samples. Not safe for concurrent use;
// the trainer's monitor loop owns it.
type ThroughputMeter struct {
	window  int
	samples []frameSample
}

func NewThroughputMeter(window int) *ThroughputMeter {
	if window < 2 {
		window = DefaultWindow
	}
	return &ThroughputMeter{window: window}
}

// Observe records the counters at time at and returns the rates. Fewer than
// two samples yield zero rates.
func (m *ThroughputMeter) Observe(at time.Time, total int64, perPos [core.NumPositions]int64) Rates {
	m.samples = append(m.samples, frameSample{at: at, total: total, perPos: perPos})
	if len(m.samples) > m.window {
		m.samples = m.samples[len(m.samples)-m.window:]
	}
	if len(m.samples) < 2 {
		return Rates{}
	}

	first, prev, last := m.samples[0], m.samples[len(m.samples)-2], m.samples[len(m.samples)-1]
	secs := last.at.Sub(first.at).Seconds()
	if secs <= 0 {
		return Rates{}
	}
	r := Rates{FPS: float64(last.total-first.total) / secs}
	if step := last.at.Sub(prev.at).Seconds(); step > 0 {
		r.InstantFPS = float64(last.total-prev.total) / step
	}
	for _, pos := range core.Positions {
		r.PositionFPS[pos] = float64(last.perPos[pos]-first.perPos[pos]) / secs
	}
	return r
}

// Samples returns how many samples are currently averaged.
func (m *ThroughputMeter) Samples() int { return len(m.samples) }
