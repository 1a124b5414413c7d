package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"

	"hoots/pkg/api"
	"hoots/pkg/models"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

type fakeIdentity struct {
	user *models.User
}

func (f fakeIdentity) User() (models.User, bool) {
	if f.user == nil {
		return models.User{}, false
	}
	return *f.user, true
}

var signedIn = fakeIdentity{user: &models.User{ID: "u1", Username: "alice"}}

type fakeLister struct {
	hoots []models.Hoot
	err   error
	calls int
	// before runs inside ListHoots, before the result is returned.
	before func()
}

func (f *fakeLister) ListHoots(ctx context.Context) ([]models.Hoot, error) {
	f.calls++
	if f.before != nil {
		f.before()
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Hoot(nil), f.hoots...), nil
}

func hoot(id string) models.Hoot {
	return models.Hoot{ID: id, Title: "title " + id, Category: models.News, Author: &models.User{ID: "u1"}}
}

func ids(hoots []models.Hoot) []string {
	out := make([]string, 0, len(hoots))
	for _, h := range hoots {
		out = append(out, h.ID)
	}
	return out
}

func TestHoots_LoadReplaces(t *testing.T) {
	remote := &fakeLister{hoots: []models.Hoot{hoot("h3"), hoot("h2")}}
	s := NewHoots(remote, signedIn)
	s.ApplyCreate(hoot("stale"))

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(s.List(), remote.hoots) {
		t.Errorf("want collection\n%+v\n\ngot collection\n%+v\n", remote.hoots, s.List())
	}
	if !s.Loaded() {
		t.Error("want store marked loaded")
	}
}

func TestHoots_LoadDedupes(t *testing.T) {
	remote := &fakeLister{hoots: []models.Hoot{hoot("h1"), hoot("h2"), hoot("h1")}}
	s := NewHoots(remote, signedIn)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := ids(s.List()), []string{"h1", "h2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("want ids %v, got %v", want, got)
	}
}

func TestHoots_LoadAnonymous(t *testing.T) {
	remote := &fakeLister{hoots: []models.Hoot{hoot("h1")}}
	s := NewHoots(remote, fakeIdentity{})

	err := s.Load(context.Background())
	if !errors.Is(err, ErrAnonymous) || !errors.Is(err, api.ErrAuth) {
		t.Fatalf("want ErrAnonymous matching api.ErrAuth, got %v", err)
	}
	if remote.calls != 0 {
		t.Errorf("want no remote calls, got %d", remote.calls)
	}
}

func TestHoots_LoadFailureKeepsState(t *testing.T) {
	remote := &fakeLister{hoots: []models.Hoot{hoot("h1"), hoot("h2")}}
	s := NewHoots(remote, signedIn)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	remote.err = &api.Error{Kind: api.ErrTransport, Op: "ListHoots"}
	if err := s.Load(context.Background()); !errors.Is(err, api.ErrTransport) {
		t.Fatalf("want ErrTransport, got %v", err)
	}
	if got, want := ids(s.List()), []string{"h1", "h2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("want ids %v kept, got %v", want, got)
	}
}

func TestHoots_ResetDiscardsInFlightLoad(t *testing.T) {
	s := NewHoots(nil, signedIn)
	remote := &fakeLister{hoots: []models.Hoot{hoot("previous-user")}}
	remote.before = s.Reset
	s.remote = remote

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Errorf("want empty collection, got %v", ids(got))
	}
	if s.Loaded() {
		t.Error("want store not loaded")
	}
}

func TestHoots_ApplyCreatePrepends(t *testing.T) {
	s := NewHoots(&fakeLister{}, signedIn)
	s.ApplyCreate(hoot("h1"))
	s.ApplyCreate(hoot("h2"))

	got := s.List()
	if got[0].ID != "h2" {
		t.Errorf("want newest hoot first, got %v", ids(got))
	}
	if want := []string{"h2", "h1"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("want ids %v, got %v", want, ids(got))
	}

	s.ApplyCreate(hoot("h1"))
	if want := []string{"h1", "h2"}; !reflect.DeepEqual(ids(s.List()), want) {
		t.Errorf("want re-created hoot moved to front without duplicate, got %v", ids(s.List()))
	}
}

func TestHoots_ApplyDeleteAbsentIsIdentity(t *testing.T) {
	s := NewHoots(&fakeLister{}, signedIn)
	s.ApplyCreate(hoot("h1"))
	s.ApplyCreate(hoot("h2"))

	before := s.hoots
	if s.ApplyDelete("missing") {
		t.Error("want false for absent id")
	}
	if len(s.hoots) != len(before) || &s.hoots[0] != &before[0] {
		t.Error("want the very same sequence after deleting an absent id")
	}
	if !reflect.DeepEqual(s.hoots, before) {
		t.Errorf("want sequence unchanged, got %v", ids(s.hoots))
	}
}

func TestHoots_ApplyDelete(t *testing.T) {
	s := NewHoots(&fakeLister{}, signedIn)
	for _, id := range []string{"h1", "h2", "h3"} {
		s.ApplyCreate(hoot(id))
	}

	if !s.ApplyDelete("h2") {
		t.Fatal("want true for present id")
	}
	if want := []string{"h3", "h1"}; !reflect.DeepEqual(ids(s.List()), want) {
		t.Errorf("want ids %v, got %v", want, ids(s.List()))
	}
}

func TestHoots_ApplyUpdate(t *testing.T) {
	s := NewHoots(&fakeLister{}, signedIn)
	for _, id := range []string{"h1", "h2", "h3"} {
		s.ApplyCreate(hoot(id))
	}

	updated := hoot("h2")
	updated.Title = "edited"
	if !s.ApplyUpdate("h2", updated) {
		t.Fatal("want true for present id")
	}

	got, ok := s.Get("h2")
	if !ok || got.Title != "edited" {
		t.Errorf("want edited hoot, got %+v", got)
	}
	if want := []string{"h3", "h2", "h1"}; !reflect.DeepEqual(ids(s.List()), want) {
		t.Errorf("want order %v kept, got %v", want, ids(s.List()))
	}
}

// An update for a hoot that was never loaded into the list is dropped; the
// list only catches up on the next Load.
func TestHoots_ApplyUpdateNeverListedIsDropped(t *testing.T) {
	remote := &fakeLister{}
	s := NewHoots(remote, signedIn)
	s.ApplyCreate(hoot("h1"))

	if s.ApplyUpdate("h9", hoot("h9")) {
		t.Error("want false for id not in the list")
	}
	if _, ok := s.Get("h9"); ok {
		t.Error("want update dropped")
	}

	remote.hoots = []models.Hoot{hoot("h9"), hoot("h1")}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Get("h9"); !ok {
		t.Error("want hoot visible after reload")
	}
}

func TestHoots_ApplyUpdateChangingIDStaysUnique(t *testing.T) {
	s := NewHoots(&fakeLister{}, signedIn)
	for _, id := range []string{"h1", "h2", "h3"} {
		s.ApplyCreate(hoot(id))
	}

	s.ApplyUpdate("h1", hoot("h3"))
	if want := []string{"h2", "h3"}; !reflect.DeepEqual(ids(s.List()), want) {
		t.Errorf("want ids %v, got %v", want, ids(s.List()))
	}
}

func TestHoots_NoDuplicateIDs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewHoots(&fakeLister{}, signedIn)

	for step := 0; step < 2000; step++ {
		id := fmt.Sprintf("h%d", rng.Intn(8))
		switch rng.Intn(3) {
		case 0:
			s.ApplyCreate(hoot(id))
		case 1:
			s.ApplyDelete(id)
		case 2:
			s.ApplyUpdate(id, hoot(fmt.Sprintf("h%d", rng.Intn(8))))
		}

		seen := make(map[string]bool)
		for _, h := range s.List() {
			if seen[h.ID] {
				t.Fatalf("step %d: duplicate id %s in %v", step, h.ID, ids(s.List()))
			}
			seen[h.ID] = true
		}
	}
}

func TestHoots_ListIsCopy(t *testing.T) {
	s := NewHoots(&fakeLister{}, signedIn)
	s.ApplyCreate(hoot("h1"))

	got := s.List()
	got[0].Title = "mutated"

	if h, _ := s.Get("h1"); h.Title == "mutated" {
		t.Error("want List to return a copy")
	}
}
