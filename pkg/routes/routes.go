// Package routes is the client's route table and the gate deciding who may
// open which route.
package routes

import (
	"net/http"
	"net/url"
	"path"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"hoots/pkg/models"
)

// Route names.
const (
	Landing     = "landing"
	Hoots       = "hoots"
	NewHoot     = "new-hoot"
	HootDetail  = "hoot-detail"
	EditHoot    = "edit-hoot"
	EditComment = "edit-comment"
	SignUp      = "sign-up"
	SignIn      = "sign-in"
)

// Path variables.
const (
	HootID    = "hootId"
	CommentID = "commentId"
)

type access int

const (
	public access = iota
	guestOnly
	protected
)

// Decision is the outcome of Authorize. When Allow is false the caller must
// navigate to Redirect instead of rendering the route.
type Decision struct {
	Allow    bool
	Redirect string
	Route    string
	Vars     map[string]string
}

type Gate struct {
	r      *mux.Router
	access map[string]access
}

func New() *Gate {
	g := Gate{
		r:      mux.NewRouter(),
		access: make(map[string]access),
	}
	g.endpoints()

	return &g
}

func (g *Gate) endpoints() {
	g.handle("/", Landing, public)
	g.handle("/sign-up", SignUp, guestOnly)
	g.handle("/sign-in", SignIn, guestOnly)

	g.handle("/hoots", Hoots, protected)
	// Registered ahead of the detail route so "new" is not taken for an id.
	g.handle("/hoots/new", NewHoot, protected)
	g.handle("/hoots/{hootId}", HootDetail, protected)
	g.handle("/hoots/{hootId}/edit", EditHoot, protected)
	g.handle("/hoots/{hootId}/comments/{commentId}/edit", EditComment, protected)
}

func (g *Gate) handle(tpl, name string, a access) {
	g.r.NewRoute().Path(tpl).Name(name)
	g.access[name] = a
}

// Match resolves p to a route name and its variables.
func (g *Gate) Match(p string) (name string, vars map[string]string, ok bool) {
	u, err := url.Parse(p)
	if err != nil {
		return "", nil, false
	}
	clean := path.Clean("/" + u.Path)

	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: clean}}
	var m mux.RouteMatch
	if !g.r.Match(req, &m) || m.Route == nil {
		return "", nil, false
	}

	if m.Vars == nil {
		m.Vars = make(map[string]string)
	}
	return m.Route.GetName(), m.Vars, true
}

// Authorize decides whether user may open p. The landing route is always
// open. Anonymous users are sent to sign-in from protected routes, signed-in
// users are sent to the hoot list from sign-in and sign-up, and unknown paths
// go back to the landing route.
func (g *Gate) Authorize(user *models.User, p string) Decision {
	name, vars, ok := g.Match(p)
	if !ok {
		log.Debugf("[Authorize] unknown path %q", p)
		return Decision{Redirect: "/"}
	}

	d := Decision{Route: name, Vars: vars}
	switch g.access[name] {
	case public:
		d.Allow = true
	case guestOnly:
		d.Allow = user == nil
		if !d.Allow {
			d.Redirect = g.URL(Hoots)
		}
	case protected:
		d.Allow = user != nil
		if !d.Allow {
			d.Redirect = g.URL(SignIn)
		}
	}

	if !d.Allow {
		log.Debugf("[Authorize] %q denied, redirecting to %s", p, d.Redirect)
	}
	return d
}

// URL builds the path of the named route from variable name/value pairs.
// It returns "/" for an unknown route or missing variables.
func (g *Gate) URL(name string, pairs ...string) string {
	r := g.r.Get(name)
	if r == nil {
		return "/"
	}
	u, err := r.URLPath(pairs...)
	if err != nil {
		log.Errorf("[URL] cannot build route %s: %v", name, err)
		return "/"
	}
	return u.Path
}

// CanMutate reports whether current may edit or delete a record by author.
// A record without a known author is never mutable.
func CanMutate(author, current *models.User) bool {
	if author == nil || current == nil {
		return false
	}
	return author.ID != "" && author.ID == current.ID
}
