package agentloop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// DefaultCommandTimeout is the wall-clock budget of one command.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps how much command output is accumulated.
	DefaultMaxOutputBytes = 1 << 20

	// EmptyOutputMarker is the result of a command that printed nothing.
	EmptyOutputMarker = "(empty)"

	// readChunk is the longest piece of a line delivered at once.
	readChunk = 4 << 10

	// drainGrace bounds how long output is drained after a kill before the
	// pipe is closed on any descendant still holding it.
	drainGrace = 2 * time.Second
)

// Sandbox runs one shell command at a time with a wall-clock budget, merging
// stdout and stderr and streaming each line as it is produced.
type Sandbox struct {
	mu             sync.Mutex
	dir            string
	timeout        time.Duration
	maxOutputBytes int
	environ        func() []string
	logger         *zap.Logger
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithSandboxLogger sets the logger for command lifecycle messages.
func WithSandboxLogger(logger *zap.Logger) SandboxOption {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// WithMaxOutputBytes caps the accumulated output of one command.
func WithMaxOutputBytes(n int) SandboxOption {
	return func(s *Sandbox) {
		s.maxOutputBytes = n
	}
}

// NewSandbox creates a sandbox that runs commands in dir. A non-positive
// timeout selects DefaultCommandTimeout.
func NewSandbox(dir string, timeout time.Duration, opts ...SandboxOption) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	s := &Sandbox{
		dir:            dir,
		timeout:        timeout,
		maxOutputBytes: DefaultMaxOutputBytes,
		environ:        os.Environ,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the per-command wall-clock budget.
func (s *Sandbox) Timeout() time.Duration { return s.timeout }

// TimeoutMarker is appended to the output of a command killed for exceeding
// its budget.
func TimeoutMarker(d time.Duration) string {
	return fmt.Sprintf("(timed out after %s)", d)
}

// Run executes command through the host shell and blocks until it exits, the
// budget elapses, or ctx is cancelled. onLine, if non-nil, is called with
// each output line (without its newline) as it arrives.
//
// A timeout is not an error: the process group is killed and the captured
// output is returned with TimeoutMarker appended. Cancellation of ctx kills
// the process group and returns ctx.Err(). The returned text is trimmed, or
// EmptyOutputMarker if the command printed nothing.
func (s *Sandbox) Run(ctx context.Context, command string, onLine func(string)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, pw, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("create output pipe: %w", err)
	}

	shell, args := shellCommand(command)
	cmd := exec.Command(shell, args...)
	cmd.Dir = s.dir
	cmd.Env = filterEnvironment(s.environ())
	cmd.Stdout = pw
	cmd.Stderr = pw
	prepareCommand(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return "", fmt.Errorf("start command: %w", err)
	}
	// The child holds its own copy of the write end; EOF arrives once every
	// process that inherited it is gone.
	pw.Close()

	lines := make(chan string)
	go readLines(pr, lines)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var (
		out       strings.Builder
		dropped   int
		timedOut  bool
		cancelled bool
		waitErr   error
	)
	collect := func(line string) {
		if onLine != nil {
			onLine(strings.TrimRight(line, "\r\n"))
		}
		keep := max(0, min(len(line), s.maxOutputBytes-out.Len()))
		for keep > 0 && keep < len(line) && !utf8.RuneStart(line[keep]) {
			keep--
		}
		out.WriteString(line[:keep])
		dropped += len(line) - keep
	}

wait:
	for lines != nil || waitDone != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			collect(line)
		case waitErr = <-waitDone:
			waitDone = nil
		case <-timer.C:
			timedOut = true
			break wait
		case <-ctx.Done():
			cancelled = true
			break wait
		}
	}

	if timedOut || cancelled {
		killProcessGroup(cmd)
		grace := time.NewTimer(drainGrace)
		graceC := grace.C
		for lines != nil {
			select {
			case line, ok := <-lines:
				if !ok {
					lines = nil
					continue
				}
				collect(line)
			case <-graceC:
				graceC = nil
				pr.Close()
			}
		}
		grace.Stop()
		if waitDone != nil {
			waitErr = <-waitDone
		}
	}
	pr.Close()

	s.logger.Debug("command finished",
		zap.String("command", command),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("timed_out", timedOut),
		zap.Bool("cancelled", cancelled),
		zap.NamedError("wait", waitErr),
	)

	if cancelled {
		return "", ctx.Err()
	}

	var parts []string
	if result := strings.TrimSpace(out.String()); result != "" {
		parts = append(parts, result)
	}
	if dropped > 0 {
		parts = append(parts, fmt.Sprintf("(output truncated: %d bytes dropped)", dropped))
	}
	if timedOut {
		parts = append(parts, TimeoutMarker(s.timeout))
	}
	if len(parts) == 0 {
		return EmptyOutputMarker, nil
	}
	return strings.Join(parts, "\n"), nil
}

// readLines sends each line read from r, including its newline, and closes
// lines at EOF or on a read error. Lines longer than readChunk are sent in
// pieces of at most readChunk bytes.
func readLines(r *os.File, lines chan<- string) {
	defer close(lines)
	br := bufio.NewReaderSize(r, readChunk)
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			lines <- string(chunk)
		}
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			return
		}
	}
}
