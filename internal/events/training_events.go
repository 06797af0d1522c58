package events

import (
	"time"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// Event type constants
const (
	TypeTrainingStarted  = "training.started"
	TypeTrainingStopped  = "training.stopped"
	TypeCheckpointSaved  = "checkpoint.saved"
	TypeWeightsPublished = "weights.published"
	TypeActorFailed      = "actor.failed"
	TypeReport           = "report"
)

// TrainingStartedEvent is published once every worker has been spawned
type TrainingStartedEvent struct {
	header
	Devices       int   `json:"devices"`
	Actors        int   `json:"actors"`
	Learners      int   `json:"learners"`
	ResumedFrames int64 `json:"resumed_frames"`
}

func NewTrainingStartedEvent(runID string, devices, actors, learners int, resumed int64) *TrainingStartedEvent {
	return &TrainingStartedEvent{
		header:        newHeader(TypeTrainingStarted, runID),
		Devices:       devices,
		Actors:        actors,
		Learners:      learners,
		ResumedFrames: resumed,
	}
}

// TrainingStoppedEvent is published after the final checkpoint
type TrainingStoppedEvent struct {
	header
	Frames int64  `json:"frames"`
	Reason string `json:"reason"`
}

func NewTrainingStoppedEvent(runID string, frames int64, reason string) *TrainingStoppedEvent {
	return &TrainingStoppedEvent{
		header: newHeader(TypeTrainingStopped, runID),
		Frames: frames,
		Reason: reason,
	}
}

// CheckpointSavedEvent is published after a checkpoint is durably written
type CheckpointSavedEvent struct {
	header
	Path     string        `json:"path"`
	Frames   int64         `json:"frames"`
	Duration time.Duration `json:"duration"`
}

func NewCheckpointSavedEvent(runID, path string, frames int64, took time.Duration) *CheckpointSavedEvent {
	return &CheckpointSavedEvent{
		header:   newHeader(TypeCheckpointSaved, runID),
		Path:     path,
		Frames:   frames,
		Duration: took,
	}
}

// WeightsPublishedEvent is published when a learner has copied new weights
// into every actor replica
type WeightsPublishedEvent struct {
	header
	Position core.RoundPosition `json:"position"`
	Version  uint64             `json:"version"`
	Loss     float64            `json:"loss"`
}

func NewWeightsPublishedEvent(runID string, pos core.RoundPosition, version uint64, loss float64) *WeightsPublishedEvent {
	return &WeightsPublishedEvent{
		header:   newHeader(TypeWeightsPublished, runID),
		Position: pos,
		Version:  version,
		Loss:     loss,
	}
}

// ActorFailedEvent is published when an actor worker exits with an error
type ActorFailedEvent struct {
	header
	ActorID string `json:"actor_id"`
	Device  string `json:"device"`
	Error   string `json:"error"`
	Stack   string `json:"stack,omitempty"`
}

func NewActorFailedEvent(runID, actorID, device string, err error, stack string) *ActorFailedEvent {
	return &ActorFailedEvent{
		header:  newHeader(TypeActorFailed, runID),
		ActorID: actorID,
		Device:  device,
		Error:   err.Error(),
		Stack:   stack,
	}
}

// ReportEvent carries one monitor tick of throughput and learner stats
type ReportEvent struct {
	header
	Frames         int64                      `json:"frames"`
	PositionFrames [core.NumPositions]int64   `json:"position_frames"`
	FPS            float64                    `json:"fps"`
	PositionFPS    [core.NumPositions]float64 `json:"position_fps"`
	Stats          map[string]float64         `json:"stats"`
}

func NewReportEvent(runID string, frames int64, posFrames [core.NumPositions]int64, fps float64, posFPS [core.NumPositions]float64, stats map[string]float64) *ReportEvent {
	return &ReportEvent{
		header:         newHeader(TypeReport, runID),
		Frames:         frames,
		PositionFrames: posFrames,
		FPS:            fps,
		PositionFPS:    posFPS,
		Stats:          stats,
	}
}
