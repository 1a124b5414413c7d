// Package apitest runs an in-memory Hoots backend for tests.
//
// It speaks the same REST contract as the real backend: bearer tokens signed
// with Secret, author-only mutations, {"err": "..."} failure bodies, and
// server-assigned ids and timestamps.
package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"hoots/pkg/logger"
	"hoots/pkg/models"
)

// Secret signs the tokens the server accepts.
const Secret = "apitest-secret"

type ctxKeyUser struct{}

var userKey = ctxKeyUser{}

type Server struct {
	*httptest.Server

	mu    sync.Mutex
	hoots []models.Hoot
	users map[string]models.User
	calls map[string]int
}

// NewServer starts the backend. Callers must Close it.
func NewServer() *Server {
	s := Server{
		users: make(map[string]models.User),
		calls: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.router())

	return &s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(headerMiddleware)
	r.Use(s.authMiddleware)

	r.HandleFunc("/hoots", s.listHoots).Methods(http.MethodGet)
	r.HandleFunc("/hoots", s.createHoot).Methods(http.MethodPost)
	r.HandleFunc("/hoots/{hootId}", s.getHoot).Methods(http.MethodGet)
	r.HandleFunc("/hoots/{hootId}", s.updateHoot).Methods(http.MethodPut)
	r.HandleFunc("/hoots/{hootId}", s.deleteHoot).Methods(http.MethodDelete)
	r.HandleFunc("/hoots/{hootId}/comments", s.createComment).Methods(http.MethodPost)
	r.HandleFunc("/hoots/{hootId}/comments/{commentId}", s.updateComment).Methods(http.MethodPut)
	r.HandleFunc("/hoots/{hootId}/comments/{commentId}", s.deleteComment).Methods(http.MethodDelete)

	return r
}

// Token mints a session token for user, valid for an hour.
func (s *Server) Token(user models.User) string {
	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()

	claims := jwt.MapClaims{
		"payload": map[string]any{"_id": user.ID, "username": user.Username},
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		panic(fmt.Sprintf("apitest: sign token: %v", err))
	}
	return token
}

// Seed stores h as the newest hoot, assigning an id and timestamps when they
// are missing, and returns the stored record.
func (s *Server) Seed(h models.Hoot) models.Hoot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = newID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
		h.UpdatedAt = h.CreatedAt
	}
	if h.Author != nil {
		if _, ok := s.users[h.Author.ID]; !ok {
			s.users[h.Author.ID] = *h.Author
		}
	}
	s.hoots = slices.Insert(s.hoots, 0, h)
	return s.populate(h)
}

// Calls reports how many requests were served for "METHOD /path-template".
func (s *Server) Calls(method, tpl string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+tpl]
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		panic(fmt.Sprintf("apitest: generate id: %v", err))
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := logger.NewStatusRecorder(w)

		next.ServeHTTP(sr, r)

		tpl := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				tpl = t
			}
		}
		s.mu.Lock()
		s.calls[r.Method+" "+tpl]++
		s.mu.Unlock()

		log.Debugf("[apitest][%s] %s %s -> %d (%s)", logger.Shorten(r.Header.Get("X-Request-Id")), r.Method, r.URL.Path, sr.Status(), time.Since(start))
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			writeErr(w, http.StatusBadRequest, "Missing X-Request-Id header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func headerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeErr(w, http.StatusUnauthorized, "Invalid token.")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(Secret), nil
		})
		payload, _ := claims["payload"].(map[string]any)
		id, _ := payload["_id"].(string)
		if err != nil || id == "" {
			writeErr(w, http.StatusUnauthorized, "Invalid token.")
			return
		}
		username, _ := payload["username"].(string)

		ctx := context.WithValue(r.Context(), userKey, models.User{ID: id, Username: username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) models.User {
	u, _ := r.Context().Value(userKey).(models.User)
	return u
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"err": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("[apitest] failed to encode response: %v", err)
	}
}

var (
	errNoHoot    = errors.New("hoot not found")
	errNoComment = errors.New("comment not found")
)

// populate fills author references from the user table.
func (s *Server) populate(h models.Hoot) models.Hoot {
	h.Author = s.lookup(h.Author)
	h.Comments = slices.Clone(h.Comments)
	for i := range h.Comments {
		h.Comments[i].Author = s.lookup(h.Comments[i].Author)
	}
	return h
}

func (s *Server) lookup(ref *models.User) *models.User {
	if ref == nil {
		return nil
	}
	if u, ok := s.users[ref.ID]; ok {
		return &u
	}
	return &models.User{ID: ref.ID}
}

func (s *Server) index(id string) int {
	return slices.IndexFunc(s.hoots, func(h models.Hoot) bool { return h.ID == id })
}

// hootOf resolves the hootId path variable under s.mu.
func (s *Server) hootOf(r *http.Request) (int, error) {
	i := s.index(mux.Vars(r)["hootId"])
	if i < 0 {
		return -1, errNoHoot
	}
	return i, nil
}

func (s *Server) commentOf(r *http.Request, hi int) (int, error) {
	id := mux.Vars(r)["commentId"]
	ci := slices.IndexFunc(s.hoots[hi].Comments, func(c models.Comment) bool { return c.ID == id })
	if ci < 0 {
		return -1, errNoComment
	}
	return ci, nil
}

func decodeHootFields(r *http.Request) (models.HootFields, error) {
	var f models.HootFields
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		return f, fmt.Errorf("malformed body: %v", err)
	}
	if f.Title == "" || f.Text == "" {
		return f, errors.New("title and text are required")
	}
	if _, err := models.ParseCategory(string(f.Category)); err != nil {
		return f, err
	}
	return f, nil
}

func decodeCommentFields(r *http.Request) (models.CommentFields, error) {
	var f models.CommentFields
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		return f, fmt.Errorf("malformed body: %v", err)
	}
	if f.Text == "" {
		return f, errors.New("text is required")
	}
	return f, nil
}

func (s *Server) listHoots(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Hoot, 0, len(s.hoots))
	for _, h := range s.hoots {
		out = append(out, s.populate(h))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getHoot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.hootOf(r)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.populate(s.hoots[i]))
}

func (s *Server) createHoot(w http.ResponseWriter, r *http.Request) {
	f, err := decodeHootFields(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	user := currentUser(r)
	now := time.Now().UTC()
	h := models.Hoot{
		ID:        newID(),
		Author:    &models.User{ID: user.ID},
		Category:  f.Category,
		Title:     f.Title,
		Text:      f.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.users[user.ID] = user
	s.hoots = slices.Insert(s.hoots, 0, h)
	out := s.populate(h)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) updateHoot(w http.ResponseWriter, r *http.Request) {
	f, err := decodeHootFields(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.hootOf(r)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	h := &s.hoots[i]
	if h.Author == nil || h.Author.ID != currentUser(r).ID {
		writeErr(w, http.StatusForbidden, "You're not allowed to do that!")
		return
	}

	h.Title, h.Text, h.Category = f.Title, f.Text, f.Category
	h.UpdatedAt = time.Now().UTC()

	// The update response carries the hoot's own fields only.
	out := s.populate(*h)
	out.Comments = nil
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteHoot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.hootOf(r)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	h := s.hoots[i]
	if h.Author == nil || h.Author.ID != currentUser(r).ID {
		writeErr(w, http.StatusForbidden, "You're not allowed to do that!")
		return
	}

	s.hoots = slices.Delete(s.hoots, i, i+1)
	writeJSON(w, http.StatusOK, s.populate(h))
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	f, err := decodeCommentFields(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.hootOf(r)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}

	user := currentUser(r)
	s.users[user.ID] = user
	now := time.Now().UTC()
	c := models.Comment{
		ID:        newID(),
		Author:    &models.User{ID: user.ID},
		Text:      f.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.hoots[i].Comments = append(s.hoots[i].Comments, c)

	c.Author = s.lookup(c.Author)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateComment(w http.ResponseWriter, r *http.Request) {
	f, err := decodeCommentFields(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hi, err := s.hootOf(r)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	ci, err := s.commentOf(r, hi)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	c := &s.hoots[hi].Comments[ci]
	if c.Author == nil || c.Author.ID != currentUser(r).ID {
		writeErr(w, http.StatusForbidden, "You're not allowed to do that!")
		return
	}

	c.Text = f.Text
	c.UpdatedAt = time.Now().UTC()

	out := *c
	out.Author = s.lookup(out.Author)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hi, err := s.hootOf(r)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	ci, err := s.commentOf(r, hi)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	c := s.hoots[hi].Comments[ci]
	if c.Author == nil || c.Author.ID != currentUser(r).ID {
		writeErr(w, http.StatusForbidden, "You're not allowed to do that!")
		return
	}

	s.hoots[hi].Comments = slices.Delete(s.hoots[hi].Comments, ci, ci+1)
	c.Author = s.lookup(c.Author)
	writeJSON(w, http.StatusOK, c)
}
