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
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sinayoko/stencil-code/stencil/backend"
)

// Record is the on-disk persisted-cache record: the encoded fingerprint,
// the generated source text, and an optional backend binary blob.
type Record struct {
	FingerprintBytes []byte
	SourceText       string
	BinaryBlob       []byte
}

// Restorable is implemented by backends whose Artifact can be reconstructed
// from a persisted Record without repeating the compile step. A backend
// that does not implement it (e.g. the reference backend, which has no
// generated source to persist) simply never participates in on-disk
// caching; Store.Load reports ok=false for it.
type Restorable interface {
	// Restore rebuilds an Artifact from a persisted record.
	Restore(rec Record) (backend.Artifact, error)
}

// Persistable is implemented by an Artifact that can serialize itself into
// a Record for on-disk storage.
type Persistable interface {
	Persist() Record
}

// Store is a directory of gob-encoded Record files, one per fingerprint,
// named by the fingerprint's stable hash (Fingerprint.Key).
type Store struct {
	dir        string
	restorable Restorable
}

// NewStore creates a Store rooted at dir (created if absent), whose
// restored artifacts are reconstructed via restorable.
func NewStore(dir string, restorable Restorable) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating store directory %q: %w", dir, err)
	}
	return &Store{dir: dir, restorable: restorable}, nil
}

func (s *Store) path(fp Fingerprint) string {
	return filepath.Join(s.dir, fp.Key()+".gob")
}

// Load reads and decodes fp's record, if present, reconstructing its
// Artifact via the Store's Restorable. ok is false on a cold miss (no
// record on disk); err is non-nil only for a corrupt or unreadable record.
func (s *Store) Load(fp Fingerprint) (backend.Artifact, bool, error) {
	f, err := os.Open(s.path(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: opening persisted record: %w", err)
	}
	defer f.Close()

	var rec Record
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return nil, false, fmt.Errorf("cache: decoding persisted record: %w", err)
	}
	art, err := s.restorable.Restore(rec)
	if err != nil {
		return nil, false, fmt.Errorf("cache: restoring artifact from persisted record: %w", err)
	}
	return art, true, nil
}

// Save writes art's persisted Record for fp, if art implements Persistable.
// Artifacts that don't (there is nothing meaningful to reconstruct without
// recompiling) are silently skipped.
func (s *Store) Save(fp Fingerprint, art backend.Artifact) error {
	p, ok := art.(Persistable)
	if !ok {
		return nil
	}
	rec := p.Persist()
	rec.FingerprintBytes = fp.Bytes()

	tmp := s.path(fp) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: creating persisted record: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(rec); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache: encoding persisted record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cache: closing persisted record: %w", err)
	}
	return os.Rename(tmp, s.path(fp))
}
