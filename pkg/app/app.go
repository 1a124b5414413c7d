// Package app ties the session, the backend client, the stores and the route
// gate together. It is what a front end drives: every navigation and every
// user action goes through App.
//
// A navigation is authorized first and then pulls what the target route
// shows. A mutation calls the backend, patches the affected stores from the
// response and only then returns the path to navigate to next.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"hoots/pkg/api"
	"hoots/pkg/identity"
	"hoots/pkg/models"
	"hoots/pkg/routes"
	"hoots/pkg/store"
)

// maxRedirects bounds the redirect chain followed by Navigate.
const maxRedirects = 4

// ErrSignedIn is returned by SignIn while a session is already active.
var ErrSignedIn = errors.New("already signed in, sign out first")

// Remote is the backend surface App needs; *api.Client satisfies it.
type Remote interface {
	ListHoots(ctx context.Context) ([]models.Hoot, error)
	GetHoot(ctx context.Context, id string) (models.Hoot, error)
	CreateHoot(ctx context.Context, fields models.HootFields) (models.Hoot, error)
	UpdateHoot(ctx context.Context, id string, fields models.HootFields) (models.Hoot, error)
	DeleteHoot(ctx context.Context, id string) (models.Hoot, error)
	CreateComment(ctx context.Context, hootID string, fields models.CommentFields) (models.Comment, error)
	UpdateComment(ctx context.Context, hootID, commentID string, fields models.CommentFields) (models.Comment, error)
	DeleteComment(ctx context.Context, hootID, commentID string) (models.Comment, error)
}

// Page is what a route renders after Navigate.
type Page struct {
	Path  string
	Route string
	Vars  map[string]string

	Greeting string
	Hoots    []models.Hoot
	Hoot     models.Hoot
	State    store.State
	Comment  models.Comment
}

type App struct {
	session *identity.Context
	remote  Remote
	gate    *routes.Gate
	hoots   *store.Hoots
	detail  *store.Detail

	mu   sync.Mutex
	path string
}

func New(session *identity.Context, remote Remote) *App {
	return &App{
		session: session,
		remote:  remote,
		gate:    routes.New(),
		hoots:   store.NewHoots(remote, session),
		detail:  store.NewDetail(remote),
		path:    "/",
	}
}

// Start loads the hoot list when a persisted session is already present.
func (a *App) Start(ctx context.Context) error {
	if _, ok := a.session.User(); !ok {
		return nil
	}
	return a.hoots.Load(ctx)
}

// User returns the signed-in user, if any.
func (a *App) User() (models.User, bool) {
	return a.session.User()
}

// Path returns the path of the page last navigated to.
func (a *App) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Hoots is the list store.
func (a *App) Hoots() *store.Hoots { return a.hoots }

// Detail is the detail store.
func (a *App) Detail() *store.Detail { return a.detail }

func (a *App) Gate() *routes.Gate { return a.gate }

// Controls reports whether edit and delete controls are shown for a record
// by author.
func (a *App) Controls(author *models.User) bool {
	u, ok := a.session.User()
	if !ok {
		return false
	}
	return routes.CanMutate(author, &u)
}

func (a *App) currentUser() *models.User {
	if u, ok := a.session.User(); ok {
		return &u
	}
	return nil
}

// Navigate opens path, following gate redirects, and loads what the target
// route shows. The returned page is valid even when err is not nil: a failed
// load still tells the caller where it ended up.
func (a *App) Navigate(ctx context.Context, path string) (Page, error) {
	var d routes.Decision
	for i := 0; ; i++ {
		d = a.gate.Authorize(a.currentUser(), path)
		if d.Allow {
			break
		}
		if i == maxRedirects {
			return Page{Path: path}, fmt.Errorf("too many redirects navigating to %s", path)
		}
		log.Debugf("[Navigate] %s redirected to %s", path, d.Redirect)
		path = d.Redirect
	}

	a.mu.Lock()
	a.path = path
	a.mu.Unlock()

	page := Page{Path: path, Route: d.Route, Vars: d.Vars}
	err := a.load(ctx, &page)
	return page, err
}

func (a *App) load(ctx context.Context, page *Page) error {
	switch page.Route {
	case routes.Landing:
		if u, ok := a.session.User(); ok {
			page.Greeting = fmt.Sprintf("Welcome, %s", u.Username)
		} else {
			page.Greeting = "Welcome to Hoots"
		}

	case routes.Hoots:
		var err error
		if !a.hoots.Loaded() {
			err = a.hoots.Load(ctx)
		}
		page.Hoots = a.hoots.List()
		return err

	case routes.HootDetail, routes.EditHoot:
		err := a.detail.Load(ctx, page.Vars[routes.HootID])
		page.Hoot, page.State = a.detail.View()
		return err

	case routes.EditComment:
		err := a.detail.Load(ctx, page.Vars[routes.HootID])
		page.Hoot, page.State = a.detail.View()
		if err != nil {
			return err
		}
		cid := page.Vars[routes.CommentID]
		c, ok := page.Hoot.FindComment(cid)
		if !ok {
			return &api.Error{Kind: api.ErrNotFound, Op: "EditComment", Msg: fmt.Sprintf("no comment %s on hoot %s", cid, page.Hoot.ID)}
		}
		page.Comment = c
	}

	return nil
}

// Refresh reloads the hoot list.
func (a *App) Refresh(ctx context.Context) error {
	return a.hoots.Load(ctx)
}

// SignIn starts a session for the user carried by token and loads that
// user's hoot list. It returns the path to navigate to. The sign-in route is
// guest-only, so an active session is left untouched and the gate's redirect
// is returned with ErrSignedIn.
func (a *App) SignIn(ctx context.Context, token string) (string, error) {
	if d := a.gate.Authorize(a.currentUser(), a.gate.URL(routes.SignIn)); !d.Allow {
		log.Debugf("[SignIn] refused, session already active")
		return d.Redirect, ErrSignedIn
	}

	user, err := a.session.SignIn(token)
	if err != nil {
		return "", err
	}

	a.hoots.Reset()
	a.detail.Reset()
	if err := a.hoots.Load(ctx); err != nil {
		log.Warnf("[SignIn] hoot list not loaded for %s: %v", user.ID, err)
	}

	return a.gate.URL(routes.Landing), nil
}

// SignOut ends the session and forgets everything loaded for it.
func (a *App) SignOut() string {
	a.session.SignOut()
	a.hoots.Reset()
	a.detail.Reset()

	return a.gate.URL(routes.Landing)
}

// AddHoot creates a hoot and puts it at the front of the list.
func (a *App) AddHoot(ctx context.Context, fields models.HootFields) (models.Hoot, string, error) {
	h, err := a.remote.CreateHoot(ctx, fields)
	if err != nil {
		return models.Hoot{}, "", err
	}

	a.hoots.ApplyCreate(h)
	log.Debugf("[AddHoot] hoot %s added to list", h.ID)

	return h, a.gate.URL(routes.Hoots), nil
}

// UpdateHoot edits a hoot and patches both stores. The list only changes if
// it already holds the hoot.
func (a *App) UpdateHoot(ctx context.Context, id string, fields models.HootFields) (models.Hoot, string, error) {
	h, err := a.remote.UpdateHoot(ctx, id, fields)
	if err != nil {
		return models.Hoot{}, "", err
	}

	a.hoots.ApplyUpdate(id, h)
	a.detail.ApplyHootUpdate(h)

	return h, a.gate.URL(routes.HootDetail, routes.HootID, id), nil
}

// DeleteHoot deletes a hoot and drops it from the list.
func (a *App) DeleteHoot(ctx context.Context, id string) (string, error) {
	h, err := a.remote.DeleteHoot(ctx, id)
	if err != nil {
		return "", err
	}

	deleted := h.ID
	if deleted == "" {
		deleted = id
	}
	if !a.hoots.ApplyDelete(deleted) {
		log.Debugf("[DeleteHoot] hoot %s was not in list", deleted)
	}
	if a.detail.ID() == deleted {
		a.detail.Reset()
	}

	return a.gate.URL(routes.Hoots), nil
}

// AddComment comments on a hoot and appends the comment to the open detail.
func (a *App) AddComment(ctx context.Context, hootID string, fields models.CommentFields) (models.Comment, error) {
	c, err := a.remote.CreateComment(ctx, hootID, fields)
	if err != nil {
		return models.Comment{}, err
	}

	if !a.detail.ApplyCommentCreate(hootID, c) {
		log.Debugf("[AddComment] hoot %s not open, comment %s not applied", hootID, c.ID)
	}
	return c, nil
}

// UpdateComment edits a comment and returns the path of its hoot.
func (a *App) UpdateComment(ctx context.Context, hootID, commentID string, fields models.CommentFields) (models.Comment, string, error) {
	c, err := a.remote.UpdateComment(ctx, hootID, commentID, fields)
	if err != nil {
		return models.Comment{}, "", err
	}

	a.detail.ApplyCommentUpdate(hootID, commentID, c)

	return c, a.gate.URL(routes.HootDetail, routes.HootID, hootID), nil
}

// DeleteComment deletes a comment and removes it from the open detail.
func (a *App) DeleteComment(ctx context.Context, hootID, commentID string) error {
	if _, err := a.remote.DeleteComment(ctx, hootID, commentID); err != nil {
		return err
	}

	a.detail.ApplyCommentDelete(hootID, commentID)
	return nil
}
