// Package params is the explicit parameter context threaded through every
// forward call. A Store owns named parameters; a Scope is a path-qualified
// view of it that layers use to create or fetch their parameters.
package params

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/metrics"
)

// Store holds every parameter of a model, keyed by its scope path
// (for example "block_0/MambaBlock_0/Dense_1/kernel").
type Store struct {
	mu        sync.RWMutex
	seed      uint64
	values    map[string]*mat.Dense
	workspace *cpu.Context
}

func NewStore(seed uint64) *Store {
	return &Store{
		seed:      seed,
		values:    make(map[string]*mat.Dense),
		workspace: cpu.NewContext(),
	}
}

// Root returns a fresh top-level scope. Child numbering restarts for every
// root, so repeated forward passes resolve the same parameter names.
func (s *Store) Root() *Scope {
	return &Scope{store: s}
}

// Workspace is the scratch pool shared by layers running against this store.
func (s *Store) Workspace() *cpu.Context {
	return s.workspace
}

func (s *Store) Get(name string) (*mat.Dense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.values[name]
	return m, ok
}

// Set replaces (or creates) a parameter. The host calls this between
// forward passes, for example after an optimizer step.
func (s *Store) Set(name string, m *mat.Dense) {
	s.mu.Lock()
	s.values[name] = m
	s.mu.Unlock()
	metrics.RecordParameterBytes(s.Bytes())
}

func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Bytes is the float64 payload size of all parameters.
func (s *Store) Bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.values {
		r, c := m.Dims()
		n += int64(r*c) * 8
	}
	return n
}

// Zero overwrites every parameter whose name matches prefix with zeros.
// An empty prefix zeroes the whole store.
func (s *Store) Zero(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, m := range s.values {
		if strings.HasPrefix(name, prefix) {
			m.Zero()
		}
	}
}

func (s *Store) param(path string, rows, cols int, init Initializer) *mat.Dense {
	s.mu.RLock()
	m, ok := s.values[path]
	s.mu.RUnlock()
	if ok {
		return checkShape(path, m, rows, cols)
	}

	s.mu.Lock()
	if m, ok := s.values[path]; ok {
		s.mu.Unlock()
		return checkShape(path, m, rows, cols)
	}
	rng := rand.New(rand.NewPCG(s.seed, xxhash.Sum64String(path)))
	m = mat.NewDense(rows, cols, init.Fn(rng, rows, cols))
	s.values[path] = m
	s.mu.Unlock()

	metrics.RecordParameterInit(init.Name)
	metrics.RecordParameterBytes(s.Bytes())
	return m
}

func checkShape(path string, m *mat.Dense, rows, cols int) *mat.Dense {
	r, c := m.Dims()
	if r != rows || c != cols {
		panic(fmt.Errorf("params: %s has shape (%d, %d), requested (%d, %d)", path, r, c, rows, cols))
	}
	return m
}

// Scope is a position in the parameter tree. It is not safe for concurrent
// use; each forward pass builds its own scopes from Store.Root.
type Scope struct {
	store    *Store
	path     string
	children map[string]int
}

// Child returns the next auto-numbered sub-scope of the given kind:
// successive calls yield kind_0, kind_1, ...
func (sc *Scope) Child(kind string) *Scope {
	if sc.children == nil {
		sc.children = make(map[string]int)
	}
	n := sc.children[kind]
	sc.children[kind] = n + 1
	return sc.Named(kind + "_" + strconv.Itoa(n))
}

// Named returns a sub-scope with an explicit name.
func (sc *Scope) Named(name string) *Scope {
	return &Scope{store: sc.store, path: sc.join(name)}
}

func (sc *Scope) Path() string {
	return sc.path
}

func (sc *Scope) Store() *Store {
	return sc.store
}

// Param fetches the named parameter, creating it with init on first use.
// Requesting an existing parameter with a different shape panics.
func (sc *Scope) Param(name string, rows, cols int, init Initializer) *mat.Dense {
	return sc.store.param(sc.join(name), rows, cols, init)
}

func (sc *Scope) join(name string) string {
	if sc.path == "" {
		return name
	}
	return sc.path + "/" + name
}
