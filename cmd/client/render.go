package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"hoots/pkg/app"
	"hoots/pkg/models"
	"hoots/pkg/routes"
	"hoots/pkg/store"
)

const timeLayout = "Jan 2, 2006"

func render(w io.Writer, a *app.App, page app.Page) {
	switch page.Route {
	case routes.Landing:
		fmt.Fprintln(w, page.Greeting)
		if _, ok := a.User(); !ok {
			fmt.Fprintln(w, "Sign in with: sign-in <token>")
		}
	case routes.SignIn:
		fmt.Fprintln(w, "Sign in with: sign-in <token>")
	case routes.SignUp:
		fmt.Fprintln(w, "Create an account with the Hoots backend, then: sign-in <token>")
	case routes.Hoots:
		renderList(w, a, page.Hoots)
	case routes.NewHoot:
		fmt.Fprintf(w, "New hoot: new <title> <text> <category>\nCategories: %s\n", categories())
	case routes.HootDetail:
		renderHoot(w, a, page.Hoot, page.State)
	case routes.EditHoot:
		h := page.Hoot
		fmt.Fprintf(w, "Editing %s\n  title:    %s\n  text:     %s\n  category: %s\n", h.ID, h.Title, h.Text, h.Category)
		fmt.Fprintf(w, "Save with: edit %s <title> <text> <category>\n", h.ID)
	case routes.EditComment:
		fmt.Fprintf(w, "Editing comment %s on %q\n  text: %s\n", page.Comment.ID, page.Hoot.Title, page.Comment.Text)
		fmt.Fprintf(w, "Save with: edit-comment %s %s <text>\n", page.Hoot.ID, page.Comment.ID)
	}
}

func renderList(w io.Writer, a *app.App, hoots []models.Hoot) {
	if len(hoots) == 0 {
		fmt.Fprintln(w, "No hoots yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, h := range hoots {
		mark := ""
		if a.Controls(h.Author) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n", mark, h.ID, h.Title, h.Category, authorName(h.Author), h.CreatedAt.Format(timeLayout))
	}
	tw.Flush()
}

func renderHoot(w io.Writer, a *app.App, h models.Hoot, state store.State) {
	if state != store.Loaded {
		fmt.Fprintln(w, "Loading...")
		return
	}

	fmt.Fprintf(w, "%s\n%s\n%s posted on %s\n\n%s\n", strings.ToUpper(string(h.Category)), h.Title, authorName(h.Author), h.CreatedAt.Format(timeLayout), h.Text)
	if a.Controls(h.Author) {
		fmt.Fprintf(w, "[edit %s] [delete %s]\n", h.ID, h.ID)
	}

	fmt.Fprintf(w, "\nComments (%d)\n", len(h.Comments))
	if len(h.Comments) == 0 {
		fmt.Fprintln(w, "  There are no comments.")
		return
	}
	for _, c := range h.Comments {
		fmt.Fprintf(w, "  %s (%s) %s: %s\n", c.ID, c.CreatedAt.Format(timeLayout), authorName(c.Author), c.Text)
		if a.Controls(c.Author) {
			fmt.Fprintf(w, "    [edit-comment %s %s] [delete-comment %s %s]\n", h.ID, c.ID, h.ID, c.ID)
		}
	}
}

func authorName(u *models.User) string {
	switch {
	case u == nil:
		return "unknown"
	case u.Username != "":
		return u.Username
	default:
		return u.ID
	}
}

func categories() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
