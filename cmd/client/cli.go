package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-shellwords"

	"hoots/pkg/app"
	"hoots/pkg/models"
)

var errExit = errors.New("exit requested")

const usage = `Commands:
  go <path>                                  open a route, e.g. go /hoots
  list                                       open the hoot list
  show <hootId>                              open a hoot
  refresh                                    reload the hoot list
  new <title> <text> <category>              post a hoot
  edit <hootId> <title> <text> <category>    edit a hoot
  delete <hootId>                            delete a hoot
  comment <hootId> <text>                    comment on a hoot
  edit-comment <hootId> <commentId> <text>   edit a comment
  delete-comment <hootId> <commentId>        delete a comment
  sign-in <token>                            start a session
  sign-out                                   end the session
  whoami                                     show the signed-in user
  help                                       show this help
  exit                                       quit
Quote arguments containing spaces: new "My title" "Some text" news`

type CLI struct {
	App *app.App
	RL  *readline.Instance
	Out io.Writer
}

func NewCLI(a *app.App, rl *readline.Instance, out io.Writer) *CLI {
	return &CLI{App: a, RL: rl, Out: out}
}

// Run reads and executes one line.
func (c *CLI) Run(ctx context.Context) error {
	line, err := c.RL.Readline()
	if err != nil {
		return err
	}
	return c.Execute(ctx, line)
}

// Prompt shows the current path and user.
func (c *CLI) Prompt() string {
	who := "anonymous"
	if u, ok := c.App.User(); ok {
		who = u.Username
	}
	return fmt.Sprintf("hoots:%s (%s)> ", c.App.Path(), who)
}

func (c *CLI) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	args, err := shellwords.Parse(line)
	if err != nil {
		return fmt.Errorf("cannot parse command: %w", err)
	}
	if len(args) == 0 {
		return nil
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "help":
		fmt.Fprintln(c.Out, usage)
		return nil
	case "exit", "quit":
		return errExit
	case "go", "open":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return c.open(ctx, args[0])
	case "list":
		return c.open(ctx, "/hoots")
	case "show":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return c.open(ctx, "/hoots/"+args[0])
	case "refresh":
		if err := c.App.Refresh(ctx); err != nil {
			return err
		}
		return c.open(ctx, "/hoots")
	case "whoami":
		if u, ok := c.App.User(); ok {
			fmt.Fprintf(c.Out, "%s (%s)\n", u.Username, u.ID)
		} else {
			fmt.Fprintln(c.Out, "not signed in")
		}
		return nil
	case "sign-in":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		next, err := c.App.SignIn(ctx, args[0])
		if err != nil {
			return err
		}
		return c.open(ctx, next)
	case "sign-out":
		return c.open(ctx, c.App.SignOut())
	case "new":
		return c.newHoot(ctx, args)
	case "edit":
		return c.editHoot(ctx, args)
	case "delete":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		next, err := c.App.DeleteHoot(ctx, args[0])
		if err != nil {
			return err
		}
		return c.open(ctx, next)
	case "comment":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		if _, err := c.App.AddComment(ctx, args[0], models.CommentFields{Text: args[1]}); err != nil {
			return err
		}
		return c.show(args[0])
	case "edit-comment":
		if err := need(cmd, args, 3); err != nil {
			return err
		}
		_, next, err := c.App.UpdateComment(ctx, args[0], args[1], models.CommentFields{Text: args[2]})
		if err != nil {
			return err
		}
		return c.open(ctx, next)
	case "delete-comment":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		if err := c.App.DeleteComment(ctx, args[0], args[1]); err != nil {
			return err
		}
		return c.show(args[0])
	}

	return fmt.Errorf("unknown command %q, try 'help'", cmd)
}

func need(cmd string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s needs %d argument(s), try 'help'", cmd, n)
	}
	return nil
}

func (c *CLI) newHoot(ctx context.Context, args []string) error {
	if err := need("new", args, 3); err != nil {
		return err
	}
	_, next, err := c.App.AddHoot(ctx, models.HootFields{Title: args[0], Text: args[1], Category: models.Category(args[2])})
	if err != nil {
		return err
	}
	return c.open(ctx, next)
}

func (c *CLI) editHoot(ctx context.Context, args []string) error {
	if err := need("edit", args, 4); err != nil {
		return err
	}
	_, next, err := c.App.UpdateHoot(ctx, args[0], models.HootFields{Title: args[1], Text: args[2], Category: models.Category(args[3])})
	if err != nil {
		return err
	}
	return c.open(ctx, next)
}

// open navigates and renders the resulting page. A failed load is reported
// instead of rendered.
func (c *CLI) open(ctx context.Context, path string) error {
	page, err := c.App.Navigate(ctx, path)
	c.updatePrompt()
	if err != nil {
		return err
	}
	render(c.Out, c.App, page)
	return nil
}

// show re-renders the open hoot from the detail store without fetching.
func (c *CLI) show(hootID string) error {
	if c.App.Detail().ID() != hootID {
		fmt.Fprintln(c.Out, "Done.")
		return nil
	}
	h, state := c.App.Detail().View()
	renderHoot(c.Out, c.App, h, state)
	return nil
}

func (c *CLI) updatePrompt() {
	if c.RL != nil {
		c.RL.SetPrompt(c.Prompt())
	}
}
