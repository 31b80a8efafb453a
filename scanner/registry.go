// Package scanner defines the pluggable scanning capability and the
// registry that maps resource-type identifiers to implementations.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/emptyset-io/cloudsweep/types"
)

// ErrUnknownScanner marks a requested identifier with no registered
// implementation. Surfaced before any task executes.
var ErrUnknownScanner = errors.New("unknown scanner")

// Scope carries everything one scan invocation needs. The embedded
// aws.Config holds the account's runner credentials pinned to the
// task's region.
type Scope struct {
	AccountID     string
	AccountName   string
	Region        string
	Config        aws.Config
	DaysThreshold int
}

// Scanner inspects one resource type in one account/region and reports
// unused instances. Implementations must be safe for concurrent use
// from independent tasks and must return an empty slice, not an error,
// when nothing is found.
type Scanner interface {
	// ArgumentName is the identifier used on the CLI, e.g. "ebs-volumes".
	ArgumentName() string
	// Label is the human-readable resource type, e.g. "EBS Volumes".
	Label() string
	// Global reports whether the scanner inspects account-wide services
	// and should run once per account instead of once per region.
	Global() bool

	Scan(ctx context.Context, scope Scope) ([]types.Finding, error)
}

// Registry holds the registered scanners keyed by argument name.
type Registry struct {
	mu       sync.RWMutex
	scanners map[string]Scanner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: make(map[string]Scanner)}
}

// Register adds a scanner, replacing any previous registration for the
// same argument name.
func (r *Registry) Register(s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanners[s.ArgumentName()] = s
}

// Resolve returns the scanner for an identifier.
func (r *Registry) Resolve(name string) (Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scanners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScanner, name)
	}
	return s, nil
}

// List returns all registered argument names sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves a requested subset, or the full registered set when
// names is empty. An unrecognized name is a configuration error; it
// fails the run before any task is scheduled.
func (r *Registry) Select(names []string) ([]Scanner, error) {
	if len(names) == 0 {
		names = r.List()
	}
	selected := make([]Scanner, 0, len(names))
	for _, name := range names {
		s, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, s)
	}
	return selected, nil
}
