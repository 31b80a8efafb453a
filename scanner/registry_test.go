package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emptyset-io/cloudsweep/types"
)

type stubScanner struct {
	name   string
	global bool
}

func (s *stubScanner) ArgumentName() string { return s.name }
func (s *stubScanner) Label() string        { return s.name }
func (s *stubScanner) Global() bool         { return s.global }
func (s *stubScanner) Scan(context.Context, Scope) ([]types.Finding, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubScanner{name: "ebs-volumes"})

	s, err := r.Resolve("ebs-volumes")
	require.NoError(t, err)
	assert.Equal(t, "ebs-volumes", s.ArgumentName())

	_, err = r.Resolve("blob-storage")
	assert.ErrorIs(t, err, ErrUnknownScanner)
}

func TestRegistryListIsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubScanner{name: "rds"})
	r.Register(&stubScanner{name: "ebs-volumes"})
	r.Register(&stubScanner{name: "eip"})

	assert.Equal(t, []string{"ebs-volumes", "eip", "rds"}, r.List())
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubScanner{name: "rds"})
	r.Register(&stubScanner{name: "ebs-volumes"})

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	subset, err := r.Select([]string{"rds"})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	assert.Equal(t, "rds", subset[0].ArgumentName())

	// A single bad name fails the whole selection before scheduling
	_, err = r.Select([]string{"rds", "nope"})
	assert.ErrorIs(t, err, ErrUnknownScanner)
}
