package subscribers

import (
	"encoding/json"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/events"
	"github.com/rs/zerolog"
)

// LoggerSubscriber logs events to structured logs
type LoggerSubscriber struct {
	id              string
	logger          zerolog.Logger
	logLevel        zerolog.Level
	eventTypeFilter map[string]bool // If non-nil, only log these event types
	devMode         bool            // If true, log full event details
}

// NewLoggerSubscriber creates a new logger subscriber
func NewLoggerSubscriber(id string, logger zerolog.Logger, logLevel zerolog.Level) *LoggerSubscriber {
	return &LoggerSubscriber{
		id:       id,
		logger:   logger.With().Str("subscriber", "event_logger").Logger(),
		logLevel: logLevel,
	}
}

// ID returns the subscriber's unique identifier
func (ls *LoggerSubscriber) ID() string {
	return ls.id
}

// SetEventFilter sets which event types to log (nil means log all)
func (ls *LoggerSubscriber) SetEventFilter(eventTypes []string) {
	if len(eventTypes) == 0 {
		ls.eventTypeFilter = nil
		return
	}

	ls.eventTypeFilter = make(map[string]bool)
	for _, eventType := range eventTypes {
		ls.eventTypeFilter[eventType] = true
	}
}

// SetDevMode enables or disables development mode logging
func (ls *LoggerSubscriber) SetDevMode(enabled bool) {
	ls.devMode = enabled
}

// InterestedIn returns true if the subscriber wants to receive this event type
func (ls *LoggerSubscriber) InterestedIn(eventType string) bool {
	if ls.eventTypeFilter == nil {
		return true
	}
	return ls.eventTypeFilter[eventType]
}

// HandleEvent processes an event by logging it
func (ls *LoggerSubscriber) HandleEvent(event events.Event) {
	eventLogger := ls.logger.With().
		Str("event_type", event.Type()).
		Str("run_id", event.RunID()).
		Time("event_time", event.Timestamp()).
		Logger()

	level := ls.logLevel
	if event.Type() == events.TypeActorFailed && level < zerolog.ErrorLevel {
		level = zerolog.ErrorLevel
	}
	logEvent := eventLogger.WithLevel(level)

	switch e := event.(type) {
	case *events.TrainingStartedEvent:
		logEvent.
			Int("devices", e.Devices).
			Int("actors", e.Actors).
			Int("learners", e.Learners).
			Int64("resumed_frames", e.ResumedFrames)

	case *events.TrainingStoppedEvent:
		logEvent.
			Int64("frames", e.Frames).
			Str("reason", e.Reason)

	case *events.CheckpointSavedEvent:
		logEvent.
			Str("path", e.Path).
			Int64("frames", e.Frames).
			Dur("duration", e.Duration)

	case *events.WeightsPublishedEvent:
		logEvent.
			Str("position", e.Position.String()).
			Uint64("version", e.Version).
			Float64("loss", e.Loss)

	case *events.ActorFailedEvent:
		logEvent.
			Str("actor_id", e.ActorID).
			Str("device", e.Device).
			Str("error", e.Error).
			Str("stack", e.Stack)

	case *events.ReportEvent:
		logEvent.
			Int64("frames", e.Frames).
			Float64("fps", e.FPS).
			Float64("fps_first", e.PositionFPS[0]).
			Float64("fps_second", e.PositionFPS[1])
		for k, v := range e.Stats {
			logEvent.Float64(k, v)
		}
	}

	// In dev mode, also log the full event as JSON
	if ls.devMode {
		if jsonData, err := json.Marshal(event); err == nil {
			logEvent.RawJSON("event_data", jsonData)
		}
	}

	logEvent.Msg("Training event")
}
