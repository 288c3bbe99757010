// Package repl implements the interactive nanocode prompt.
package repl

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Control tokens accepted at the prompt.
const (
	cmdQuit  = "/q"
	cmdExit  = "exit"
	cmdClear = "/c"
	cmdInfo  = "/i"
)

// Session is the part of agentloop.Session the REPL drives.
type Session interface {
	Submit(ctx context.Context, input string) error
	Clear() error
}

// REPL reads prompts and runs each one as a session turn.
type REPL struct {
	session Session
	render  *Renderer
	info    string
	logger  *zap.Logger
}

// New creates a REPL. info is printed by the /i command.
func New(session Session, render *Renderer, info string, logger *zap.Logger) *REPL {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &REPL{session: session, render: render, info: info, logger: logger}
}

// Run reads lines from in until /q, exit, end of input, ctx cancellation, or
// an interrupt while waiting at the prompt. An interrupt during a turn cancels
// only that turn.
func (r *REPL) Run(ctx context.Context, in io.Reader, interrupts <-chan os.Signal) error {
	stop := make(chan struct{})
	defer close(stop)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		r.render.Separator()
		r.render.Prompt()

		var line string
		select {
		case <-ctx.Done():
			return nil
		case <-interrupts:
			r.render.Info("")
			return nil
		case l, ok := <-lines:
			if !ok {
				r.render.Info("")
				return <-readErr
			}
			line = strings.TrimSpace(l)
		}
		r.render.Separator()

		switch line {
		case "":
			continue
		case cmdQuit, cmdExit:
			return nil
		case cmdClear:
			if err := r.session.Clear(); err != nil {
				r.render.Error(err)
				continue
			}
			r.render.Notice("Cleared conversation")
			continue
		case cmdInfo:
			r.render.Info(r.info)
			continue
		}

		r.turn(ctx, line, interrupts)
		r.render.Info("")
	}
}

func (r *REPL) turn(ctx context.Context, input string, interrupts <-chan os.Signal) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-done:
		}
	}()

	err := r.session.Submit(turnCtx, input)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		r.render.Notice("Interrupted")
	default:
		r.logger.Warn("turn failed", zap.Error(err))
		r.render.Error(err)
	}
}
