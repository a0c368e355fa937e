package daemon

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/logging"
)

const daemonBinary = "emane"
const transportBinary = "emanetransportd"

// ExecRunner is the default ProcessRunner: it launches daemon processes
// with os/exec, entering a node's network namespace via nsenter when the
// node has one. Captured stdout/stderr is appended to a size-rotated log
// in the run directory.
type ExecRunner struct {
	dir string
	log logging.Logger

	mu      sync.Mutex
	output  *lumberjack.Logger
	nodePID map[int]*exec.Cmd
	host    []*exec.Cmd
}

// NewExecRunner constructs a runner writing captured output under dir.
func NewExecRunner(dir string, log logging.Logger) *ExecRunner {
	if log == nil {
		log = logging.Noop()
	}
	return &ExecRunner{
		dir: dir,
		log: log,
		output: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "daemon-output.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		},
		nodePID: make(map[int]*exec.Cmd),
	}
}

func (r *ExecRunner) StartNodeDaemon(ctx context.Context, node *core.HostNode, args []string) error {
	var cmd *exec.Cmd
	if node.NSPath != "" {
		full := append([]string{"--net=" + node.NSPath, "--", daemonBinary}, args...)
		cmd = exec.CommandContext(ctx, "nsenter", full...)
	} else {
		cmd = exec.CommandContext(ctx, daemonBinary, args...)
	}
	cmd.Stdout = r.output
	cmd.Stderr = r.output
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %s for node %d: %w", daemonBinary, node.ID, err)
	}

	r.mu.Lock()
	r.nodePID[node.ID] = cmd
	r.mu.Unlock()
	return nil
}

func (r *ExecRunner) StopNodeDaemon(ctx context.Context, node *core.HostNode) error {
	r.mu.Lock()
	cmd := r.nodePID[node.ID]
	delete(r.nodePID, node.ID)
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// Signal and move on; the daemon reaps itself. Waiting here would
	// block teardown on a process that may already be gone.
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill daemon for node %d: %w", node.ID, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r *ExecRunner) StartHostDaemon(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, daemonBinary, args...)
	cmd.Dir = r.dir
	cmd.Stdout = r.output
	cmd.Stderr = r.output
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec host %s: %w", daemonBinary, err)
	}

	r.mu.Lock()
	r.host = append(r.host, cmd)
	r.mu.Unlock()
	return nil
}

// StopHostDaemons terminates the host-scoped daemon and its companion
// transport daemon.
func (r *ExecRunner) StopHostDaemons(ctx context.Context) error {
	r.mu.Lock()
	cmds := r.host
	r.host = nil
	r.mu.Unlock()

	var firstErr error
	for _, cmd := range cmds {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil && firstErr == nil {
			firstErr = err
		}
		go func(c *exec.Cmd) { _ = c.Wait() }(cmd)
	}

	// The transport daemon is spawned by the host emane instance; reap
	// any stragglers by name.
	if err := exec.CommandContext(ctx, "killall", "-q", transportBinary).Run(); err != nil {
		r.log.Debug(ctx, "no transport daemon to stop", logging.Any("error", err))
	}
	return firstErr
}
