// Package plugins hosts core plugin processes: child processes speaking
// line-delimited JSON-RPC over stdio, supervised by the host and gated by
// per-plugin permission grants.
package plugins

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

const (
	// DefaultCallTimeout bounds one plugin call unless the context is shorter.
	DefaultCallTimeout = 5000 * time.Millisecond
	// shutdownGrace is how long a process gets after SIGTERM before SIGKILL.
	shutdownGrace = 3 * time.Second
	// maxLineSize bounds one protocol line from a plugin.
	maxLineSize = 1 << 20
)

type procState int

const (
	stateStarting procState = iota
	stateRunning
	stateStopping
	stateStopped
	stateCrashed
)

type callResult struct {
	raw json.RawMessage
	err error
}

type pendingCall struct {
	id string
	ch chan callResult
}

// process is one supervised child. Its mutex guards state and the pending
// call table; the order slice keeps pending ids oldest-first so a malformed
// response line can be attributed to the call that has waited longest.
type process struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu      sync.Mutex
	state   procState
	pending map[string]*pendingCall
	order   []string

	exited chan struct{}
}

// Supervisor manages the core plugin process table. Process identity lives
// only in memory; a restart of the host starts with an empty table.
type Supervisor struct {
	db          *store.DB
	logger      *slog.Logger
	callTimeout time.Duration

	mu    sync.Mutex
	procs map[string]*process

	nextID atomic.Int64
}

// New creates a supervisor. callTimeout <= 0 selects the default.
func New(db *store.DB, callTimeout time.Duration, logger *slog.Logger) *Supervisor {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Supervisor{
		db:          db,
		logger:      logger,
		callTimeout: callTimeout,
		procs:       make(map[string]*process),
	}
}

// Spawn starts a core plugin process. Returns ErrConflict when a process
// with the same name is already running.
func (s *Supervisor) Spawn(name, execPath string, args []string) (*models.CoreProcess, error) {
	s.mu.Lock()
	if p, ok := s.procs[name]; ok && p.alive() {
		s.mu.Unlock()
		return nil, fmt.Errorf("plugins: process %s already running: %w", name, apperr.ErrConflict)
	}
	s.mu.Unlock()

	cmd := exec.Command(execPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("plugins: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("plugins: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("plugins: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("plugins: start %s: %w", execPath, err)
	}

	p := &process{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		state:   stateRunning,
		pending: make(map[string]*pendingCall),
		exited:  make(chan struct{}),
	}
	s.mu.Lock()
	s.procs[name] = p
	s.mu.Unlock()

	go s.readLoop(p, stdout)
	go s.stderrLoop(p, stderr)
	go s.waitLoop(p)

	s.logger.Info("core plugin started", "name", name, "pid", cmd.Process.Pid)
	return &models.CoreProcess{Name: name, PID: cmd.Process.Pid, Running: true}, nil
}

// Shutdown stops a running process: SIGTERM, a bounded wait, then SIGKILL.
// In-flight calls fail with ErrProcessTerminated. Returns false when no
// process with that name is running.
func (s *Supervisor) Shutdown(name string) (bool, error) {
	s.mu.Lock()
	p, ok := s.procs[name]
	s.mu.Unlock()
	if !ok || !p.alive() {
		return false, nil
	}

	p.mu.Lock()
	p.state = stateStopping
	p.mu.Unlock()

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Debug("sigterm failed", "name", name, "error", err)
	}
	select {
	case <-p.exited:
	case <-time.After(shutdownGrace):
		s.logger.Warn("core plugin ignored SIGTERM, killing", "name", name)
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	s.logger.Info("core plugin stopped", "name", name)
	return true, nil
}

// ShutdownAll stops every running process. Called on host shutdown.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	s.mu.Unlock()
	for _, name := range names {
		_, _ = s.Shutdown(name)
	}
}

// List returns the current process table, sorted by name.
func (s *Supervisor) List() []models.CoreProcess {
	s.mu.Lock()
	out := make([]models.CoreProcess, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, models.CoreProcess{
			Name:    p.name,
			PID:     p.cmd.Process.Pid,
			Running: p.alive(),
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call forwards one raw JSON-RPC line to a plugin process after checking the
// plugin's permission grants and awaits the correlated response. Lines
// without an id are forwarded as notifications and return no result.
func (s *Supervisor) Call(ctx context.Context, name, line string) (json.RawMessage, error) {
	plugin, err := s.db.GetPlugin(name)
	if err != nil {
		return nil, err
	}
	if err := CheckCall(ParsePermissions(plugin.Permissions), plugin.Enabled, line); err != nil {
		return nil, err
	}

	var envelope struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal([]byte(line), &envelope); err != nil {
		return nil, fmt.Errorf("plugins: malformed call line: %w", apperr.ErrProtocolError)
	}
	if envelope.ID == nil {
		if err := s.send(name, line); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.roundTrip(ctx, name, fmt.Sprint(envelope.ID), line)
}

// Invoke issues a host-originated request to a plugin and awaits the result.
// Implements the AI gateway's CoreInvoker.
func (s *Supervisor) Invoke(ctx context.Context, plugin, method string, params any) (json.RawMessage, error) {
	id := fmt.Sprintf("host-%d", s.nextID.Add(1))
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("plugins: encode request: %w", err)
	}
	return s.roundTrip(ctx, plugin, id, string(payload))
}

func (s *Supervisor) running(name string) (*process, error) {
	s.mu.Lock()
	p, ok := s.procs[name]
	s.mu.Unlock()
	if !ok || !p.alive() {
		return nil, fmt.Errorf("plugins: no running process %s: %w", name, apperr.ErrNotFound)
	}
	return p, nil
}

func (s *Supervisor) send(name, line string) error {
	p, err := s.running(name)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("plugins: write to %s: %w", name, err)
	}
	return nil
}

// roundTrip registers a pending call, writes the line, and waits for its
// response, the call timeout, or context cancellation.
func (s *Supervisor) roundTrip(ctx context.Context, name, id, line string) (json.RawMessage, error) {
	p, err := s.running(name)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{id: id, ch: make(chan callResult, 1)}
	p.mu.Lock()
	if _, dup := p.pending[id]; dup {
		p.mu.Unlock()
		return nil, fmt.Errorf("plugins: duplicate call id %s: %w", id, apperr.ErrConflict)
	}
	p.pending[id] = call
	p.order = append(p.order, id)
	p.mu.Unlock()

	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		p.drop(id)
		return nil, fmt.Errorf("plugins: write to %s: %w", name, err)
	}

	timer := time.NewTimer(s.callTimeout)
	defer timer.Stop()
	select {
	case res := <-call.ch:
		return res.raw, res.err
	case <-timer.C:
		p.drop(id)
		return nil, fmt.Errorf("plugins: call %s timed out: %w", id, context.DeadlineExceeded)
	case <-ctx.Done():
		p.drop(id)
		return nil, ctx.Err()
	}
}

// readLoop owns the process stdout. Well-formed responses resolve their
// pending call by id; a malformed line is attributed to the oldest pending
// call as a protocol error without killing the process; lines that match
// nothing are logged and dropped.
func (s *Supervisor) readLoop(p *process, stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			s.failOldest(p, fmt.Errorf("plugins: unparseable response line: %w", apperr.ErrProtocolError))
			continue
		}
		if resp.ID == nil {
			if resp.Method != "" {
				s.logger.Debug("plugin notification", "name", p.name, "method", resp.Method)
				continue
			}
			s.failOldest(p, fmt.Errorf("plugins: response without id: %w", apperr.ErrProtocolError))
			continue
		}

		var idVal any
		if err := json.Unmarshal(resp.ID, &idVal); err != nil {
			s.failOldest(p, fmt.Errorf("plugins: bad response id: %w", apperr.ErrProtocolError))
			continue
		}
		call := p.take(fmt.Sprint(idVal))
		if call == nil {
			s.logger.Warn("plugin response matches no pending call", "name", p.name, "id", fmt.Sprint(idVal))
			continue
		}
		if resp.Error != nil {
			err := fmt.Errorf("plugins: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
			if resp.Error.Code == codeMethodNotFound {
				err = fmt.Errorf("plugins: method not found: %s: %w", resp.Error.Message, apperr.ErrNotFound)
			}
			call.ch <- callResult{err: err}
			continue
		}
		call.ch <- callResult{raw: resp.Result}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.Debug("plugin stdout closed", "name", p.name, "error", err)
	}
}

// stderrLoop forwards plugin stderr lines to the host log.
func (s *Supervisor) stderrLoop(p *process, stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		s.logger.Info("plugin stderr", "name", p.name, "line", sc.Text())
	}
}

// waitLoop reaps the child and fails whatever was still in flight.
func (s *Supervisor) waitLoop(p *process) {
	err := p.cmd.Wait()

	p.mu.Lock()
	if p.state == stateStopping {
		p.state = stateStopped
	} else {
		p.state = stateCrashed
	}
	stale := p.pending
	p.pending = make(map[string]*pendingCall)
	p.order = nil
	p.mu.Unlock()

	for _, call := range stale {
		call.ch <- callResult{err: fmt.Errorf("plugins: %s exited: %w", p.name, apperr.ErrProcessTerminated)}
	}
	if err != nil {
		s.logger.Warn("core plugin exited", "name", p.name, "error", err)
	}
	close(p.exited)
}

// failOldest resolves the longest-waiting pending call with err.
func (s *Supervisor) failOldest(p *process, err error) {
	p.mu.Lock()
	var call *pendingCall
	for len(p.order) > 0 {
		id := p.order[0]
		p.order = p.order[1:]
		if c, ok := p.pending[id]; ok {
			delete(p.pending, id)
			call = c
			break
		}
	}
	p.mu.Unlock()
	if call == nil {
		s.logger.Warn("malformed plugin line with no pending call", "name", p.name, "error", err)
		return
	}
	call.ch <- callResult{err: err}
}

func (p *process) alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateStarting || p.state == stateRunning
}

// take removes and returns the pending call with the given id, if any.
func (p *process) take(id string) *pendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.pending[id]
	if !ok {
		return nil
	}
	delete(p.pending, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return call
}

// drop abandons a pending call after timeout or cancellation. A late
// response for it is then logged and dropped by the read loop.
func (p *process) drop(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}
