// Package mutator implements scaler.ClusterMutator over the network.
//
// Both transports drive membership one worker at a time using the roster:
// growing a pool of n sends descriptor n-1 as an add request, shrinking it
// sends descriptor n-2 as a remove request. Every request carries the pool
// size it produces, and a manager already at that size acknowledges without
// changing anything. A change applied by the manager but reported as failed
// (a reply lost to a deadline) is therefore safe to resend on retry.
package mutator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/adascale/scaler"
	"github.com/inference-sim/adascale/scaler/roster"
)

// Op is a single membership change.
type Op string

const (
	OpAdd    Op = "addworker"
	OpRemove Op = "removeworker"
)

// change is one membership request for a single worker. Size is the pool
// size after the change; Target is the size the whole Resize is heading to
// and only shows up in errors.
type change struct {
	Op     Op
	Size   int
	Target int
	Worker roster.Worker
}

// Handler applies membership changes on the cluster manager side. size is
// the pool size the change produces; a manager already at size must answer
// success without changing anything. size 0 means the sender did not say.
type Handler interface {
	AddWorker(size int, w roster.Worker) error
	RemoveWorker(size int, w roster.Worker) error
}

// transport delivers one membership change.
type transport interface {
	send(ctx context.Context, c change) error
}

// stepper walks the pool size toward a target one descriptor at a time.
type stepper struct {
	mu      sync.Mutex
	roster  *roster.Roster
	current int
	t       transport
}

func newStepper(r *roster.Roster, initial int, t transport) *stepper {
	if r == nil {
		panic("mutator: roster is nil")
	}
	if initial < 1 {
		panic(fmt.Sprintf("mutator: initial pool size must be >= 1, got %d", initial))
	}
	return &stepper{roster: r, current: initial, t: t}
}

func (s *stepper) resize(ctx context.Context, target int) error {
	if target < 1 {
		return scaler.Rejected(target, "pool cannot shrink below one worker")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.current != target {
		c, err := s.next(target)
		if err != nil {
			return err
		}
		if err := s.t.send(ctx, c); err != nil {
			return err
		}
		s.current = c.Size
		logrus.Debugf("%s acknowledged, pool at %d workers", c.Op, s.current)
	}
	return nil
}

func (s *stepper) next(target int) (change, error) {
	c := change{Op: OpAdd, Size: s.current + 1, Target: target}
	var err error
	if target > s.current {
		c.Worker, err = s.roster.ForAdd(s.current)
	} else {
		c.Op, c.Size = OpRemove, s.current-1
		c.Worker, err = s.roster.ForRemove(s.current)
	}
	return c, err
}

func (s *stepper) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
