// Package roster loads the ordered list of worker descriptors used to grow
// and shrink the pool.
//
// A roster file is either a bare sequence of descriptors or a mapping with a
// single "workers" key. JSON files parse through the same decoder. Each
// descriptor is an opaque object forwarded verbatim to the cluster manager.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/adascale/scaler"
)

// Worker is one descriptor as understood by the cluster manager,
// e.g. {"host": "10.0.0.2", "port": 10001, "slots": 1}.
type Worker map[string]any

// Roster is the immutable, ordered worker list. The pool's first worker is
// the process that owns the controller, so descriptor i is the (i+2)-th worker.
type Roster struct {
	workers []Worker
}

type rosterFile struct {
	Workers []Worker `yaml:"workers"`
}

// New wraps an in-memory descriptor list.
func New(workers []Worker) *Roster {
	cp := make([]Worker, len(workers))
	copy(cp, workers)
	return &Roster{workers: cp}
}

// Load reads a roster file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	r, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a roster. Unknown top-level keys are rejected.
func Parse(in io.Reader) (*Roster, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(in).Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	if len(node.Content) == 0 {
		return New(nil), nil
	}
	root := node.Content[0]

	var workers []Worker
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&workers); err != nil {
			return nil, fmt.Errorf("parsing roster: %w", err)
		}
	case yaml.MappingNode:
		// Node.Decode ignores KnownFields; re-encode and decode strictly.
		raw, err := yaml.Marshal(root)
		if err != nil {
			return nil, fmt.Errorf("parsing roster: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		var f rosterFile
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing roster: %w", err)
		}
		workers = f.Workers
	default:
		return nil, fmt.Errorf("parsing roster: expected a list of workers or a mapping with a workers key")
	}

	for i, w := range workers {
		if len(w) == 0 {
			return nil, fmt.Errorf("worker %d: empty descriptor", i)
		}
	}
	return &Roster{workers: workers}, nil
}

// Len returns the number of descriptors.
func (r *Roster) Len() int { return len(r.workers) }

// MaxWorkers is the largest pool the roster can describe.
func (r *Roster) MaxWorkers() int { return len(r.workers) + 1 }

// ForAdd returns the descriptor of the worker that joins a pool of
// workerCount, i.e. entry workerCount-1.
func (r *Roster) ForAdd(workerCount int) (Worker, error) {
	return r.at(workerCount - 1)
}

// ForRemove returns the descriptor of the newest worker in a pool of
// workerCount, i.e. entry workerCount-2. The owning worker is never removed.
func (r *Roster) ForRemove(workerCount int) (Worker, error) {
	if workerCount < 2 {
		return nil, fmt.Errorf("%w: cannot remove the only worker", scaler.ErrRosterExhausted)
	}
	return r.at(workerCount - 2)
}

func (r *Roster) at(i int) (Worker, error) {
	if i < 0 || i >= len(r.workers) {
		return nil, fmt.Errorf("%w: no descriptor at index %d (roster has %d)", scaler.ErrRosterExhausted, i, len(r.workers))
	}
	return r.workers[i], nil
}
