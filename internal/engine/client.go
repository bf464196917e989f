package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/position"
)

// maxResponseLine bounds one engine response line. Board states are a few KB;
// 4 MB leaves generous headroom.
const maxResponseLine = 4 * 1024 * 1024

// request is the line-oriented JSON frame sent to the engine.
type request struct {
	Method string `json:"method"`
	State  State  `json:"state,omitempty"`
	Entry  any    `json:"entry,omitempty"`
	Player string `json:"player,omitempty"`
}

// response is the frame read back. Ok/Error carry transport-level results;
// everything else depends on the method.
type response struct {
	Ok     bool     `json:"ok"`
	Error  string   `json:"error,omitempty"`
	Valid  *bool    `json:"valid,omitempty"`
	State  State    `json:"state,omitempty"`
	Rules  []Rule   `json:"rules,omitempty"`
	Sights []string `json:"line_of_sight,omitempty"`
}

// Client talks line-oriented JSON to one engine process. One request is in
// flight at a time; the mutex makes stray concurrent callers safe, but the
// interactor already serializes its calls.
type Client struct {
	log     *logrus.Entry
	timeout time.Duration

	mu     sync.Mutex
	in     io.WriteCloser
	lines  <-chan string
	errs   <-chan error
	kill   func() error
	broken bool
}

// Spawn launches the engine binary and attaches a client to its stdio.
func Spawn(log *logrus.Logger, timeout time.Duration, bin string, args ...string) (*Client, error) {
	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin: %v", ErrEngineUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %v", ErrEngineUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrEngineUnavailable, bin, err)
	}

	c := newClient(log, timeout, stdin, stdout)
	c.kill = func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	go func() {
		// Reap the child; exit status is reported through the read side.
		_ = cmd.Wait()
	}()
	c.log.WithField("bin", bin).Info("engine process started")
	return c, nil
}

// NewPipeClient attaches a client to an already-open pipe pair. Used by
// tests and by in-process engine stubs.
func NewPipeClient(log *logrus.Logger, timeout time.Duration, in io.WriteCloser, out io.Reader) *Client {
	return newClient(log, timeout, in, out)
}

func newClient(log *logrus.Logger, timeout time.Duration, in io.WriteCloser, out io.Reader) *Client {
	if log == nil {
		log = logrus.New()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(out)
		scanner.Buffer(make([]byte, 64*1024), maxResponseLine)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errs <- err
		} else {
			errs <- io.EOF
		}
		close(lines)
	}()

	return &Client{
		log:     log.WithField("component", "engine-client"),
		timeout: timeout,
		in:      in,
		lines:   lines,
		errs:    errs,
		kill:    func() error { return nil },
	}
}

// call writes one request line and waits for one response line.
//
// The protocol has no request ids, so a response can only be matched to a
// request by arrival order. Once a request is abandoned (timeout or ctx
// cancellation) its response may still arrive later and would be mistaken
// for the answer to the next request; the client marks itself broken
// instead and fails every later call until the engine is respawned.
func (c *Client) call(ctx context.Context, req request) (*response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, fmt.Errorf("%w: connection out of sync after an abandoned %s, engine must be restarted", ErrEngineUnavailable, req.Method)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrEngineUnavailable, req.Method, err)
	}
	c.log.WithField("method", req.Method).Debug("engine request")

	if _, err := c.in.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrEngineUnavailable, req.Method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok {
			c.broken = true
			return nil, fmt.Errorf("%w: engine closed its output during %s", ErrEngineUnavailable, req.Method)
		}
		var resp response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return nil, fmt.Errorf("%w: decode %s response: %v", ErrEngineUnavailable, req.Method, err)
		}
		if !resp.Ok {
			return nil, fmt.Errorf("%w: %s: %s", ErrEngineUnavailable, req.Method, resp.Error)
		}
		return &resp, nil
	case err := <-c.errs:
		c.broken = true
		return nil, fmt.Errorf("%w: read %s: %v", ErrEngineUnavailable, req.Method, err)
	case <-timer.C:
		c.broken = true
		return nil, fmt.Errorf("%w: %s timed out after %s", ErrEngineUnavailable, req.Method, c.timeout)
	case <-ctx.Done():
		c.broken = true
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, req.Method, ctx.Err())
	}
}

// SetBoardState implements Engine.
func (c *Client) SetBoardState(ctx context.Context, state State) error {
	_, err := c.call(ctx, request{Method: "set_state", State: state})
	return err
}

// ProcessAction implements Engine. A response with valid=false becomes a
// RejectedActionError carrying the engine-supplied reason.
func (c *Client) ProcessAction(ctx context.Context, entry *logbook.Entry) (State, error) {
	resp, err := c.call(ctx, request{Method: "process_action", Entry: entry})
	if err != nil {
		return nil, err
	}
	if resp.Valid != nil && !*resp.Valid {
		reason := resp.Error
		if reason == "" {
			reason = "no reason given"
		}
		return nil, &RejectedActionError{Reason: reason}
	}
	return resp.State, nil
}

// PossibleActions implements Engine.
func (c *Client) PossibleActions(ctx context.Context, player string) ([]Rule, error) {
	resp, err := c.call(ctx, request{Method: "possible_actions", Player: player})
	if err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// LineOfSight implements Engine.
func (c *Client) LineOfSight(ctx context.Context, player string) ([]position.Position, error) {
	resp, err := c.call(ctx, request{Method: "line_of_sight", Player: player})
	if err != nil {
		return nil, err
	}
	out := make([]position.Position, 0, len(resp.Sights))
	for _, label := range resp.Sights {
		p, err := position.ParseHumanReadable(label)
		if err != nil {
			return nil, fmt.Errorf("%w: line_of_sight returned %q: %v", ErrEngineUnavailable, label, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Shutdown implements Engine. A polite request first; if the engine does not
// acknowledge in time it is force-killed.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, request{Method: "shutdown"})
	if err != nil {
		c.log.WithError(err).Warn("graceful engine shutdown failed, killing process")
		if killErr := c.kill(); killErr != nil {
			return fmt.Errorf("%w: kill after failed shutdown: %v", ErrEngineUnavailable, killErr)
		}
	}
	_ = c.in.Close()
	return nil
}
