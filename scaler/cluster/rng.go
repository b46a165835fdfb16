package cluster

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a reproducible simulated run.
// Two clusters with the same key and configuration produce identical step
// times, fault draws and sync outcomes.
type SimulationKey int64

// Subsystem names for PartitionedRNG.
const (
	// SubsystemStep draws per-step jitter. Uses the master seed directly.
	SubsystemStep = "step"
	// SubsystemResize draws injected resize failures.
	SubsystemResize = "resize"
	// SubsystemSync draws injected barrier failures.
	SubsystemSync = "sync"
)

// PartitionedRNG hands out one deterministically seeded source per
// subsystem, so enabling fault injection does not change step jitter.
//
// Not thread-safe; Cluster serializes access.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, subsystems: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the cached RNG for name, seeding it on first use with
// masterSeed XOR fnv1a64(name). SubsystemStep uses the master seed itself.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := int64(p.key)
	if name != SubsystemStep {
		seed ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(seed))
	p.subsystems[name] = rng
	return rng
}

func (p *PartitionedRNG) Key() SimulationKey { return p.key }

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
