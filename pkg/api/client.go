// Package api is the typed client of the Hoots REST backend.
//
// Client calls never touch local state; callers patch their stores from the
// returned records. Every failure is an *Error whose kind is one of
// ErrTransport, ErrAuth, ErrForbidden, ErrNotFound or ErrValidation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"hoots/pkg/logger"
	"hoots/pkg/models"
)

var errServerStatus = fmt.Errorf("server error status")

// Credentials supplies the session token; *identity.Context satisfies it.
type Credentials interface {
	Token() (string, bool)
}

type Client struct {
	baseURL *url.URL
	creds   Credentials
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

type Option func(*Client)

// WithLogWriter ships a log entry per request to w (normally a *kafka.Writer).
func WithLogWriter(w logger.MessageWriter) Option {
	return func(c *Client) {
		if tr, ok := c.http.Transport.(*logger.Transport); ok {
			tr.Writer = w
		}
	}
}

// WithTransport replaces the underlying round tripper, keeping request logging.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if tr, ok := c.http.Transport.(*logger.Transport); ok {
			tr.Base = rt
		}
	}
}

func New(conf Config, creds Credentials, opts ...Option) (*Client, error) {
	conf = conf.withDefaults()

	u, err := url.Parse(conf.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", conf.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", conf.BaseURL)
	}

	c := Client{
		baseURL: u,
		creds:   creds,
		http: &http.Client{
			Timeout:   conf.Timeout,
			Transport: logger.New(conf.Service, nil, nil),
		},
	}

	failures := conf.BreakerFailures
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        conf.Service,
		MaxRequests: 1,
		Timeout:     conf.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A request the caller cancelled says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[Client] circuit breaker %q state changed from %v to %v", name, from, to)
		},
	})

	for _, opt := range opts {
		opt(&c)
	}

	return &c, nil
}

func (c *Client) ListHoots(ctx context.Context) ([]models.Hoot, error) {
	var hoots []models.Hoot
	if err := c.do(ctx, "ListHoots", http.MethodGet, nil, &hoots, "hoots"); err != nil {
		return nil, err
	}
	if hoots == nil {
		hoots = []models.Hoot{}
	}

	log.Debugf("[ListHoots] received %d hoots", len(hoots))
	return hoots, nil
}

func (c *Client) GetHoot(ctx context.Context, id string) (models.Hoot, error) {
	if id == "" {
		return models.Hoot{}, &Error{Kind: ErrNotFound, Op: "GetHoot", Msg: "empty hoot id"}
	}

	var hoot models.Hoot
	if err := c.do(ctx, "GetHoot", http.MethodGet, nil, &hoot, "hoots", id); err != nil {
		return models.Hoot{}, err
	}
	return hoot, nil
}

func (c *Client) CreateHoot(ctx context.Context, fields models.HootFields) (models.Hoot, error) {
	fields = fields.Normalize()
	if err := validateFields("CreateHoot", fields); err != nil {
		return models.Hoot{}, err
	}

	var hoot models.Hoot
	if err := c.do(ctx, "CreateHoot", http.MethodPost, fields, &hoot, "hoots"); err != nil {
		return models.Hoot{}, err
	}

	log.Debugf("[CreateHoot] created hoot %s", hoot.ID)
	return hoot, nil
}

func (c *Client) UpdateHoot(ctx context.Context, id string, fields models.HootFields) (models.Hoot, error) {
	if id == "" {
		return models.Hoot{}, &Error{Kind: ErrNotFound, Op: "UpdateHoot", Msg: "empty hoot id"}
	}
	fields = fields.Normalize()
	if err := validateFields("UpdateHoot", fields); err != nil {
		return models.Hoot{}, err
	}

	var hoot models.Hoot
	if err := c.do(ctx, "UpdateHoot", http.MethodPut, fields, &hoot, "hoots", id); err != nil {
		return models.Hoot{}, err
	}

	log.Debugf("[UpdateHoot] updated hoot %s", hoot.ID)
	return hoot, nil
}

// DeleteHoot returns the deleted record as echoed by the backend.
func (c *Client) DeleteHoot(ctx context.Context, id string) (models.Hoot, error) {
	if id == "" {
		return models.Hoot{}, &Error{Kind: ErrNotFound, Op: "DeleteHoot", Msg: "empty hoot id"}
	}

	var hoot models.Hoot
	if err := c.do(ctx, "DeleteHoot", http.MethodDelete, nil, &hoot, "hoots", id); err != nil {
		return models.Hoot{}, err
	}

	log.Debugf("[DeleteHoot] deleted hoot %s", hoot.ID)
	return hoot, nil
}

func (c *Client) CreateComment(ctx context.Context, hootID string, fields models.CommentFields) (models.Comment, error) {
	if hootID == "" {
		return models.Comment{}, &Error{Kind: ErrNotFound, Op: "CreateComment", Msg: "empty hoot id"}
	}
	fields = fields.Normalize()
	if err := validateFields("CreateComment", fields); err != nil {
		return models.Comment{}, err
	}

	var comment models.Comment
	if err := c.do(ctx, "CreateComment", http.MethodPost, fields, &comment, "hoots", hootID, "comments"); err != nil {
		return models.Comment{}, err
	}

	log.Debugf("[CreateComment] created comment %s on hoot %s", comment.ID, hootID)
	return comment, nil
}

func (c *Client) UpdateComment(ctx context.Context, hootID, commentID string, fields models.CommentFields) (models.Comment, error) {
	if hootID == "" || commentID == "" {
		return models.Comment{}, &Error{Kind: ErrNotFound, Op: "UpdateComment", Msg: "empty hoot or comment id"}
	}
	fields = fields.Normalize()
	if err := validateFields("UpdateComment", fields); err != nil {
		return models.Comment{}, err
	}

	var comment models.Comment
	if err := c.do(ctx, "UpdateComment", http.MethodPut, fields, &comment, "hoots", hootID, "comments", commentID); err != nil {
		return models.Comment{}, err
	}

	log.Debugf("[UpdateComment] updated comment %s on hoot %s", comment.ID, hootID)
	return comment, nil
}

func (c *Client) DeleteComment(ctx context.Context, hootID, commentID string) (models.Comment, error) {
	if hootID == "" || commentID == "" {
		return models.Comment{}, &Error{Kind: ErrNotFound, Op: "DeleteComment", Msg: "empty hoot or comment id"}
	}

	var comment models.Comment
	if err := c.do(ctx, "DeleteComment", http.MethodDelete, nil, &comment, "hoots", hootID, "comments", commentID); err != nil {
		return models.Comment{}, err
	}

	log.Debugf("[DeleteComment] deleted comment %s on hoot %s", comment.ID, hootID)
	return comment, nil
}

// do performs one authenticated JSON call and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method string, body, out any, segments ...string) error {
	token, ok := c.creds.Token()
	if !ok {
		return &Error{Kind: ErrAuth, Op: op, Msg: "no session established"}
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: ErrValidation, Op: op, Err: err}
		}
		rdr = bytes.NewReader(b)
	}

	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	targetURL := c.baseURL.JoinPath(escaped...).String()

	req, err := http.NewRequestWithContext(ctx, method, targetURL, rdr)
	if err != nil {
		return &Error{Kind: ErrTransport, Op: op, Err: err}
	}

	reqID, err := uuid.NewV4()
	if err != nil {
		return &Error{Kind: ErrTransport, Op: op, Err: fmt.Errorf("failed to generate request ID: %w", err)}
	}
	req.Header.Set("X-Request-Id", reqID.String())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	sID := logger.Shorten(reqID.String())

	resp, err := c.roundTrip(req)
	if err != nil {
		log.Errorf("[%s][%s] error calling %s %s: %v", op, sID, method, targetURL, err)
		return &Error{Kind: ErrTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("[%s][%s] error reading response body: %v", op, sID, err)
		return &Error{Kind: ErrTransport, Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := statusError(op, resp.StatusCode, b)
		log.Infof("[%s][%s] %s %s returned status %d", op, sID, method, targetURL, resp.StatusCode)
		return e
	}

	// The backend sometimes reports rejected input inside a 2xx body.
	if msg := errMessage(b); msg != "" {
		return &Error{Kind: ErrValidation, Op: op, Status: resp.StatusCode, Msg: msg}
	}

	// A 204 or an empty 2xx body leaves out untouched.
	if len(bytes.TrimSpace(b)) == 0 {
		log.Debugf("[%s][%s] %s %s returned an empty body", op, sID, method, targetURL)
		return nil
	}

	if err := json.Unmarshal(b, out); err != nil {
		log.Errorf("[%s][%s] error decoding response: %v", op, sID, err)
		return &Error{Kind: ErrTransport, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

// roundTrip sends req through the circuit breaker. Network failures and 5xx
// responses count against the breaker; the response is returned either way.
func (c *Client) roundTrip(req *http.Request) (*http.Response, error) {
	res, err := c.cb.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})

	if errors.Is(err, errServerStatus) {
		return res.(*http.Response), nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("backend unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}
