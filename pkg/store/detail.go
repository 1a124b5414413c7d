package store

import (
	"context"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"hoots/pkg/models"
)

type HootGetter interface {
	GetHoot(ctx context.Context, id string) (models.Hoot, error)
}

type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Detail holds the hoot open in the detail view together with its comments.
// Comment patches only apply while a hoot is loaded and only to that hoot.
type Detail struct {
	remote HootGetter

	mu    sync.Mutex
	state State
	id    string
	hoot  models.Hoot
	err   error
	gen   uint64
}

func NewDetail(remote HootGetter) *Detail {
	return &Detail{remote: remote}
}

// Load fetches the hoot with the given id. A response that arrives after a
// later Load or Reset is discarded. On failure the previously loaded hoot is
// kept if it has the same id, otherwise the detail falls back to Unloaded.
func (d *Detail) Load(ctx context.Context, id string) error {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	prev, keep := d.hoot, d.state == Loaded && d.id == id
	if !keep {
		d.hoot = models.Hoot{}
	}
	d.state, d.id, d.err = Loading, id, nil
	d.mu.Unlock()

	hoot, err := d.remote.GetHoot(ctx, id)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		log.Debugf("[Detail.Load] discarding superseded response for hoot %s", id)
		return err
	}

	if err != nil {
		log.Warnf("[Detail.Load] failed to load hoot %s: %v", id, err)
		d.err = err
		if keep {
			d.state, d.hoot = Loaded, prev
		} else {
			d.state, d.hoot = Unloaded, models.Hoot{}
		}
		return err
	}

	d.state, d.hoot = Loaded, hoot
	return nil
}

// View returns a copy of the current hoot and the detail state. Callers render
// a loading indicator for anything but Loaded.
func (d *Detail) View() (models.Hoot, State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.hoot
	h.Comments = slices.Clone(d.hoot.Comments)
	return h, d.state
}

// ID returns the id addressed by the last Load.
func (d *Detail) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Err returns the error of the last failed Load, if any.
func (d *Detail) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// ApplyCommentCreate appends c to the comments of the loaded hoot.
func (d *Detail) ApplyCommentCreate(hootID string, c models.Comment) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.holds(hootID) {
		return false
	}

	if i := d.commentIndex(c.ID); i >= 0 {
		d.hoot.Comments = slices.Delete(d.hoot.Comments, i, i+1)
	}
	d.hoot.Comments = append(d.hoot.Comments, c)
	return true
}

// ApplyCommentDelete removes the comment with the given id. It is a no-op
// when the comment is not there.
func (d *Detail) ApplyCommentDelete(hootID, commentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.holds(hootID) {
		return false
	}

	i := d.commentIndex(commentID)
	if i < 0 {
		return false
	}
	d.hoot.Comments = slices.Delete(d.hoot.Comments, i, i+1)
	return true
}

// ApplyCommentUpdate replaces the comment with the given id in place. If the
// response carries another id already present, that copy is dropped.
func (d *Detail) ApplyCommentUpdate(hootID, commentID string, c models.Comment) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.holds(hootID) {
		return false
	}

	i := d.commentIndex(commentID)
	if i < 0 {
		return false
	}
	if c.ID != commentID {
		if j := d.commentIndex(c.ID); j >= 0 {
			d.hoot.Comments = slices.Delete(d.hoot.Comments, j, j+1)
			if j < i {
				i--
			}
		}
	}
	d.hoot.Comments[i] = c
	return true
}

// ApplyHootUpdate replaces the loaded hoot's own fields. Update responses
// usually omit comments, so the current comment list is kept in that case.
func (d *Detail) ApplyHootUpdate(h models.Hoot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.holds(h.ID) {
		return false
	}

	if h.Comments == nil {
		h.Comments = d.hoot.Comments
	}
	d.hoot = h
	return true
}

// Reset forgets the loaded hoot and discards any fetch still in flight.
func (d *Detail) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.state, d.id, d.hoot, d.err = Unloaded, "", models.Hoot{}, nil
}

func (d *Detail) holds(hootID string) bool {
	return d.state == Loaded && d.hoot.ID == hootID
}

func (d *Detail) commentIndex(id string) int {
	return slices.IndexFunc(d.hoot.Comments, func(c models.Comment) bool { return c.ID == id })
}
