// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package console is a line-oriented transport for talking to the relay
// from a terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sigil-dev/chatrelay/internal/channel"
	"github.com/sigil-dev/chatrelay/internal/conversation"
)

// DefaultConversationID identifies the terminal conversation.
const DefaultConversationID = "console"

// Options configures a REPL.
type Options struct {
	In             io.Reader
	Out            io.Writer
	ConversationID string
}

// REPL reads prompts line by line and prints the relay's replies. It
// understands /start and /reset (new session) and /exit.
type REPL struct {
	relay channel.Relay
	in    io.Reader
	out   io.Writer
	id    string

	promptStyle lipgloss.Style
	replyStyle  lipgloss.Style
	noticeStyle lipgloss.Style
	errorStyle  lipgloss.Style
}

// New returns a REPL. Colours are only emitted when Out is a terminal.
func New(relay channel.Relay, opts Options) *REPL {
	if opts.ConversationID == "" {
		opts.ConversationID = DefaultConversationID
	}
	r := lipgloss.NewRenderer(opts.Out)
	return &REPL{
		relay:       relay,
		in:          opts.In,
		out:         opts.Out,
		id:          opts.ConversationID,
		promptStyle: r.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		replyStyle:  r.NewStyle().Foreground(lipgloss.Color("10")),
		noticeStyle: r.NewStyle().Foreground(lipgloss.Color("240")),
		errorStyle:  r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Run reads until EOF, /exit, or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	r.println(r.noticeStyle, "Type a message. /start resets the conversation, /exit quits.")

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		r.print(r.promptStyle, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		ev := conversation.Event{ConversationID: r.id}
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/start" || line == "/reset":
			ev.Kind = conversation.EventReset
		case strings.HasPrefix(line, "/"):
			r.println(r.noticeStyle, "unknown command "+line)
			continue
		default:
			ev.Kind = conversation.EventMessage
			ev.Text = line
		}

		res, err := r.roundTrip(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		style := r.replyStyle
		if res.Err != nil {
			style = r.errorStyle
		} else if ev.Kind == conversation.EventReset {
			style = r.noticeStyle
		}
		r.println(style, res.Text())
	}
}

// roundTrip posts ev and waits for its result.
func (r *REPL) roundTrip(ctx context.Context, ev conversation.Event) (conversation.Result, error) {
	done := make(chan conversation.Result, 1)
	if err := r.relay.Post(ctx, ev, func(_ context.Context, res conversation.Result) { done <- res }); err != nil {
		return conversation.Result{}, err
	}
	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return conversation.Result{}, ctx.Err()
	}
}

func (r *REPL) print(style lipgloss.Style, s string) {
	fmt.Fprint(r.out, style.Render(s))
}

func (r *REPL) println(style lipgloss.Style, s string) {
	fmt.Fprintln(r.out, style.Render(s))
}
