package model

import (
	"fmt"
	"sync"

	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

// Replica is the actor-visible copy of both positions' weights on one
// device. Readers never observe a partially written snapshot.
type Replica struct {
	Device string
	mu     [core.NumPositions]sync.RWMutex
	params [core.NumPositions]Params
}

var _ Policy = (*Replica)(nil)

// NewReplica copies the current weights of m.
func NewReplica(device string, m ValueModel) *Replica {
	r := &Replica{Device: device}
	for _, pos := range core.Positions {
		r.params[pos] = m.Weights(pos)
	}
	return r
}

// Inference returns the arg-max move for obs under the weights of pos.
func (r *Replica) Inference(pos core.RoundPosition, obs *game.Observation) (int, error) {
	if !pos.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPosition, int(pos))
	}
	if len(obs.Moves) == 0 {
		return 0, core.ErrIllegalMove
	}
	r.mu[pos].RLock()
	defer r.mu[pos].RUnlock()
	return Argmax(Values(&r.params[pos], obs)), nil
}

// Version returns the version of the weights currently held for pos.
func (r *Replica) Version(pos core.RoundPosition) uint64 {
	r.mu[pos].RLock()
	defer r.mu[pos].RUnlock()
	return r.params[pos].Version
}

// Load replaces the weights of pos with p. p must not be modified afterwards.
func (r *Replica) Load(pos core.RoundPosition, p Params) {
	r.mu[pos].Lock()
	r.params[pos] = p
	r.mu[pos].Unlock()
}

// ReplicaSet is every device's replica.
type ReplicaSet struct {
	replicas []*Replica
}

// NewReplicaSet creates one replica per device from the current weights of m.
func NewReplicaSet(devices []string, m ValueModel) *ReplicaSet {
	rs := &ReplicaSet{}
	for _, d := range devices {
		rs.replicas = append(rs.replicas, NewReplica(d, m))
	}
	return rs
}

// Get returns the replica of device index i.
func (rs *ReplicaSet) Get(i int) *Replica { return rs.replicas[i] }

func (rs *ReplicaSet) Len() int { return len(rs.replicas) }

// Publish copies p into every replica. Each replica gets its own copy.
func (rs *ReplicaSet) Publish(pos core.RoundPosition, p Params) {
	for _, r := range rs.replicas {
		r.Load(pos, p.Clone())
	}
}
