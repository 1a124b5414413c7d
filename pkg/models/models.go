package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownCategory = fmt.Errorf("unknown category")

type Category string

const (
	News       Category = "News"
	Sports     Category = "Sports"
	Games      Category = "Games"
	Movies     Category = "Movies"
	Music      Category = "Music"
	Television Category = "Television"
)

var Categories = []Category{News, Sports, Games, Movies, Music, Television}

// ParseCategory matches s against the known categories ignoring case and
// surrounding whitespace, and returns the canonical spelling.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

type User struct {
	ID       string `json:"_id"`
	Username string `json:"username,omitempty"`
}

// UnmarshalJSON accepts either a populated user object or a bare id string,
// since the backend does not always populate author references.
func (u *User) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*u = User{ID: id}
		return nil
	}

	type plain User
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*u = User(p)
	return nil
}

type Hoot struct {
	ID        string    `json:"_id"`
	Author    *User     `json:"author,omitempty"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Comments  []Comment `json:"comments,omitempty"`
}

type Comment struct {
	ID        string    `json:"_id"`
	Author    *User     `json:"author,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HootFields is the payload of hoot create and update calls.
type HootFields struct {
	Title    string   `json:"title" validate:"required"`
	Text     string   `json:"text" validate:"required"`
	Category Category `json:"category" validate:"required,oneof=News Sports Games Movies Music Television"`
}

// Normalize trims every field and canonicalizes the category spelling.
// Unknown categories are left as typed so validation can report them.
func (f HootFields) Normalize() HootFields {
	f.Title = strings.TrimSpace(f.Title)
	f.Text = strings.TrimSpace(f.Text)
	if c, err := ParseCategory(string(f.Category)); err == nil {
		f.Category = c
	} else {
		f.Category = Category(strings.TrimSpace(string(f.Category)))
	}
	return f
}

type CommentFields struct {
	Text string `json:"text" validate:"required"`
}

func (f CommentFields) Normalize() CommentFields {
	f.Text = strings.TrimSpace(f.Text)
	return f
}

// FindComment returns the comment with the given id, if the hoot has it.
func (h Hoot) FindComment(id string) (Comment, bool) {
	for _, c := range h.Comments {
		if c.ID == id {
			return c, true
		}
	}
	return Comment{}, false
}
