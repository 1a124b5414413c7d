// Package store keeps the client's local copies of backend records: the hoot
// list and the hoot currently open in the detail view.
//
// The two stores are independent. A mutation patches whichever of them it
// affects from the backend's response; nothing propagates between them.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"hoots/pkg/api"
	"hoots/pkg/models"
)

var ErrAnonymous = fmt.Errorf("%w: no signed-in user", api.ErrAuth)

type HootLister interface {
	ListHoots(ctx context.Context) ([]models.Hoot, error)
}

// Identity reports the signed-in user; *identity.Context satisfies it.
type Identity interface {
	User() (models.User, bool)
}

// Hoots is the ordered hoot collection, newest first. It never holds two
// entries with the same id.
type Hoots struct {
	remote HootLister
	id     Identity

	mu     sync.Mutex
	hoots  []models.Hoot
	loaded bool
	gen    uint64
}

func NewHoots(remote HootLister, id Identity) *Hoots {
	return &Hoots{remote: remote, id: id}
}

// Load replaces the collection with the backend's list. It refuses to run for
// an anonymous session. On failure the collection is left as it was.
func (s *Hoots) Load(ctx context.Context) error {
	if _, ok := s.id.User(); !ok {
		return ErrAnonymous
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	hoots, err := s.remote.ListHoots(ctx)
	if err != nil {
		log.Warnf("[Hoots.Load] failed to load hoots: %v", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		log.Debugf("[Hoots.Load] discarding list fetched before reset")
		return nil
	}
	s.hoots = dedupe(hoots)
	s.loaded = true

	log.Debugf("[Hoots.Load] loaded %d hoots", len(s.hoots))
	return nil
}

// List returns a copy of the collection.
func (s *Hoots) List() []models.Hoot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.hoots)
}

func (s *Hoots) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Hoots) Get(id string) (models.Hoot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.hoots[i], true
	}
	return models.Hoot{}, false
}

// ApplyCreate puts h at the front of the collection.
func (s *Hoots) ApplyCreate(h models.Hoot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(h.ID); i >= 0 {
		s.hoots = slices.Delete(s.hoots, i, i+1)
	}
	s.hoots = slices.Insert(s.hoots, 0, h)
}

// ApplyDelete removes the hoot with the given id. It reports false, leaving
// the collection untouched, when there is no such hoot.
func (s *Hoots) ApplyDelete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false
	}
	s.hoots = slices.Delete(s.hoots, i, i+1)
	return true
}

// ApplyUpdate replaces the hoot with the given id in place. It reports false
// when the hoot is not in the collection: an edit of a hoot that was never
// listed is dropped here and only shows up after the next Load.
func (s *Hoots) ApplyUpdate(id string, h models.Hoot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		log.Debugf("[Hoots.ApplyUpdate] hoot %s not in list, update dropped", id)
		return false
	}
	if h.ID != id {
		if j := s.index(h.ID); j >= 0 {
			s.hoots = slices.Delete(s.hoots, j, j+1)
			if j < i {
				i--
			}
		}
	}
	s.hoots[i] = h
	return true
}

// Reset empties the collection and discards any list fetch still in flight.
func (s *Hoots) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hoots = nil
	s.loaded = false
	s.gen++
}

func (s *Hoots) index(id string) int {
	return slices.IndexFunc(s.hoots, func(h models.Hoot) bool { return h.ID == id })
}

// dedupe drops later entries that repeat an earlier id.
func dedupe(hoots []models.Hoot) []models.Hoot {
	seen := make(map[string]struct{}, len(hoots))
	out := make([]models.Hoot, 0, len(hoots))
	for _, h := range hoots {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return out
}
