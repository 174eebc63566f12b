// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sinayoko/stencil-code/stencil/backend"
	"github.com/sinayoko/stencil-code/stencil/grid"
	"github.com/sinayoko/stencil-code/stencil/topology"
)

// fakeArtifact is a minimal Artifact for cache tests.
type fakeArtifact struct{ src string }

func (a *fakeArtifact) Source() string  { return a.src }
func (a *fakeArtifact) Persist() Record { return Record{SourceText: a.src} }

// fakeRestorer reconstructs fakeArtifacts from persisted records.
type fakeRestorer struct{}

func (fakeRestorer) Restore(rec Record) (backend.Artifact, error) {
	return &fakeArtifact{src: rec.SourceText}, nil
}

func fingerprintN(n int) Fingerprint {
	return Fingerprint{
		NDim:       2,
		Shape:      []int{8, n},
		Dtype:      grid.Float64,
		Boundary:   topology.BoundaryZero,
		GhostDepth: []int{1, 1},
		Neighborhoods: [][]topology.Offset{
			{{0, 1}, {0, -1}},
		},
		BackendID: "c",
	}
}

// TestFingerprintKeyStability verifies equal fingerprints hash equal and
// differing fields change the key.
func TestFingerprintKeyStability(t *testing.T) {
	a := fingerprintN(8)
	b := fingerprintN(8)
	require.Equal(t, a.Key(), b.Key())

	variants := []Fingerprint{
		fingerprintN(9),
		func() Fingerprint { f := fingerprintN(8); f.Boundary = topology.BoundaryClamp; return f }(),
		func() Fingerprint { f := fingerprintN(8); f.BackendID = "ocl"; return f }(),
		func() Fingerprint { f := fingerprintN(8); f.Coefficients = []float64{1}; return f }(),
		func() Fingerprint {
			f := fingerprintN(8)
			f.Neighborhoods = [][]topology.Offset{{{0, 1}, {0, -1}, {1, 0}}}
			return f
		}(),
	}
	for i, v := range variants {
		if v.Key() == a.Key() {
			t.Errorf("variant %d collides with the base fingerprint", i)
		}
	}
}

// TestGetOrBuildBuildsOnce verifies at most one build per fingerprint
// across sequential lookups.
func TestGetOrBuildBuildsOnce(t *testing.T) {
	c := New()
	var builds int
	build := func() (backend.Artifact, error) {
		builds++
		return &fakeArtifact{src: "k"}, nil
	}

	a1, err := c.GetOrBuild(fingerprintN(8), build)
	require.NoError(t, err)
	a2, err := c.GetOrBuild(fingerprintN(8), build)
	require.NoError(t, err)

	require.Equal(t, 1, builds)
	require.Same(t, a1, a2)
}

// TestGetOrBuildConcurrent verifies that concurrent misses on one
// fingerprint collapse into a single build.
func TestGetOrBuildConcurrent(t *testing.T) {
	c := New()
	var builds atomic.Int32
	build := func() (backend.Artifact, error) {
		builds.Add(1)
		return &fakeArtifact{src: "k"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrBuild(fingerprintN(8), build); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Errorf("build ran %d times, want 1", n)
	}
}

// TestNegativeCaching verifies build failures are cached and re-raised
// without rebuilding.
func TestNegativeCaching(t *testing.T) {
	c := New()
	var builds int
	buildErr := errors.New("device compiler rejected source")
	build := func() (backend.Artifact, error) {
		builds++
		return nil, buildErr
	}

	_, err1 := c.GetOrBuild(fingerprintN(8), build)
	_, err2 := c.GetOrBuild(fingerprintN(8), build)

	require.ErrorIs(t, err1, buildErr)
	require.ErrorIs(t, err2, buildErr)
	require.Equal(t, 1, builds)
}

// TestForgetForcesRebuild verifies the eviction escape hatch.
func TestForgetForcesRebuild(t *testing.T) {
	c := New()
	var builds int
	build := func() (backend.Artifact, error) {
		builds++
		return &fakeArtifact{src: fmt.Sprint(builds)}, nil
	}

	_, _ = c.GetOrBuild(fingerprintN(8), build)
	c.Forget(fingerprintN(8))
	_, _ = c.GetOrBuild(fingerprintN(8), build)
	require.Equal(t, 2, builds)
}

// TestLRUEvictsOldest verifies the bounded policy drops the
// least-recently-used fingerprint.
func TestLRUEvictsOldest(t *testing.T) {
	inner := New()
	l := NewLRU(inner, 2)
	var builds int
	build := func() (backend.Artifact, error) {
		builds++
		return &fakeArtifact{}, nil
	}

	_, _ = l.GetOrBuild(fingerprintN(1), build)
	_, _ = l.GetOrBuild(fingerprintN(2), build)
	_, _ = l.GetOrBuild(fingerprintN(1), build) // refresh 1
	_, _ = l.GetOrBuild(fingerprintN(3), build) // evicts 2
	require.Equal(t, 3, builds)
	require.Equal(t, 2, inner.Len())

	_, _ = l.GetOrBuild(fingerprintN(2), build) // rebuilt
	require.Equal(t, 4, builds)
}

// TestStoreRoundTrip verifies the persisted-record path: a save from one
// cache is a cold hit for a fresh cache over the same directory.
func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, fakeRestorer{})
	require.NoError(t, err)

	c1 := NewPersistent(store)
	var builds int
	build := func() (backend.Artifact, error) {
		builds++
		return &fakeArtifact{src: "__kernel void k() {}"}, nil
	}
	_, err = c1.GetOrBuild(fingerprintN(8), build)
	require.NoError(t, err)
	require.Equal(t, 1, builds)

	c2 := NewPersistent(store)
	art, err := c2.GetOrBuild(fingerprintN(8), build)
	require.NoError(t, err)
	require.Equal(t, 1, builds, "fresh cache should restore from disk, not rebuild")
	require.Equal(t, "__kernel void k() {}", art.Source())
}
