package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator generates numbered ids: "<prefix>-0001", "<prefix>-0002", ...
//
// It implements docstore.IDGenerator. Two stores fed the same writes through
// generators with the same prefix assign identical ids, which keeps scenario
// traces byte-identical across runs.
//
// Thread-safety: SequenceIDGenerator is safe for concurrent use via internal mutex.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator. An empty prefix means "id".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
