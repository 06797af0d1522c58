package events

import (
	"errors"
	"testing"
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToFuncHandler(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	var got Event
	bus.SubscribeFunc(TypeCheckpointSaved, func(e Event) { got = e })
	bus.Publish(NewCheckpointSavedEvent("run-1", "/tmp/model.ckpt", 1000, time.Second))
	bus.Publish(NewTrainingStoppedEvent("run-1", 1000, "cancelled"))

	require.NotNil(t, got)
	assert.Equal(t, TypeCheckpointSaved, got.Type())
	assert.Equal(t, "run-1", got.RunID())
	assert.False(t, got.Timestamp().IsZero())
	saved, ok := got.(*CheckpointSavedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1000), saved.Frames)
}

func TestEventBusHandlersOfOneType(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	var calls []string
	first := bus.SubscribeFunc(TypeReport, func(Event) { calls = append(calls, "first") })
	second := bus.SubscribeFunc(TypeReport, func(Event) { calls = append(calls, "second") })
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, bus.HandlerCount(TypeReport))

	report := NewReportEvent("run-1", 10, [core.NumPositions]int64{4, 6}, 1, [core.NumPositions]float64{}, nil)
	bus.Publish(report)
	assert.Equal(t, []string{"first", "second"}, calls)

	bus.Unsubscribe(first)
	assert.Equal(t, 1, bus.HandlerCount(TypeReport))
	bus.Publish(report)
	assert.Equal(t, []string{"first", "second", "second"}, calls)
}

type recordingSubscriber struct {
	id     string
	types  map[string]bool
	events []Event
}

func (s *recordingSubscriber) ID() string                   { return s.id }
func (s *recordingSubscriber) HandleEvent(e Event)          { s.events = append(s.events, e) }
func (s *recordingSubscriber) InterestedIn(typ string) bool { return s.types == nil || s.types[typ] }

func TestEventBusSubscriberFilter(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	sub := &recordingSubscriber{
		id:    "lifecycle",
		types: map[string]bool{TypeTrainingStarted: true, TypeTrainingStopped: true},
	}
	bus.Subscribe(sub)
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Publish(NewTrainingStartedEvent("run-1", 1, 4, 2, 0))
	bus.Publish(NewWeightsPublishedEvent("run-1", core.PositionFirst, 3, 0.5))
	bus.Publish(NewTrainingStoppedEvent("run-1", 100, "cancelled"))

	require.Len(t, sub.events, 2)
	assert.Equal(t, TypeTrainingStarted, sub.events[0].Type())
	assert.Equal(t, TypeTrainingStopped, sub.events[1].Type())

	bus.Unsubscribe(sub.ID())
	assert.Zero(t, bus.SubscriberCount())
	bus.Publish(NewTrainingStartedEvent("run-1", 1, 4, 2, 0))
	assert.Len(t, sub.events, 2)
}

func TestEventBusHandlerMayUnsubscribeItself(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	calls := 0
	var id string
	id = bus.SubscribeFunc(TypeActorFailed, func(Event) {
		calls++
		bus.Unsubscribe(id)
	})

	failed := NewActorFailedEvent("run-1", "cpu-0", "cpu", errors.New("exploded"), "")
	bus.Publish(failed)
	bus.Publish(failed)
	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.HandlerCount(TypeActorFailed))
}

func TestEventBusRecoversFromPanics(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	called := false
	bus.Subscribe(&panickingSubscriber{})
	bus.SubscribeFunc(TypeActorFailed, func(Event) { panic("boom") })
	bus.SubscribeFunc(TypeActorFailed, func(Event) { called = true })

	assert.NotPanics(t, func() {
		bus.Publish(NewActorFailedEvent("run-1", "cpu-0", "cpu", errors.New("exploded"), "stack"))
	})
	assert.True(t, called, "later handlers still run after a panic")
	assert.Equal(t, int64(2), bus.Panics())
}

type panickingSubscriber struct{}

func (panickingSubscriber) ID() string               { return "panics" }
func (panickingSubscriber) HandleEvent(Event)        { panic("subscriber boom") }
func (panickingSubscriber) InterestedIn(string) bool { return true }
