// Package agent defines the base contract every agent implements (§4.4).
package agent

import (
	"fmt"
	"sync/atomic"
)

// Kind identifies an agent's role.
type Kind string

const (
	KindDataProducer     Kind = "producer"
	KindTechnicalAnalyst Kind = "ta"
	KindPatternLearner   Kind = "learner"
	KindSynthesizer      Kind = "synthesizer"
	KindRiskManager      Kind = "risk"
	KindPnLTracker       Kind = "pnl"
	KindProspector       Kind = "prospector"
	KindBuilder          Kind = "builder"
	KindArchiver         Kind = "archiver"
	KindShutdown         Kind = "shutdown"
)

// Agent is the narrow capability the scheduler drives: a name and a step.
// Agents never share mutable state directly with each other; all
// interaction is by bus or by shared-state reads (§4.4).
type Agent interface {
	ID() uint64
	Name() string
	Kind() Kind
	Step()
}

// IDAllocator hands out process-unique, monotonically increasing agent IDs.
// It is shared across every agent constructor, mirroring the spec's "process
// unique id" requirement without a global singleton: it is an explicitly
// injected handle (§9 "Global mutable singletons → injected handles").
type IDAllocator struct {
	counter atomic.Uint64
}

// NewIDAllocator creates a fresh allocator starting at 1.
func NewIDAllocator() *IDAllocator { return &IDAllocator{} }

// Next returns the next process-unique ID.
func (a *IDAllocator) Next() uint64 { return a.counter.Add(1) }

// Base is embedded by concrete agents to satisfy ID/Name/Kind and the
// zero-op default Step (purely reactive agents never override it).
type Base struct {
	id   uint64
	name string
	kind Kind
}

// NewBase allocates an ID and builds the "{kind}_{id}" name (§4.4).
func NewBase(ids *IDAllocator, kind Kind) Base {
	id := ids.Next()
	return Base{id: id, name: fmt.Sprintf("%s_%d", kind, id), kind: kind}
}

func (b *Base) ID() uint64   { return b.id }
func (b *Base) Name() string { return b.name }
func (b *Base) Kind() Kind   { return b.kind }

// Step is a no-op default for purely reactive agents (§4.4).
func (b *Base) Step() {}
