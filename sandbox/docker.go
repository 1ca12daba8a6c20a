// Package sandbox provides the isolated per-user command execution
// backend: one Docker container per user, lazily created, reaped after
// inactivity. Any infrastructure failure reports the command as not
// sandboxed so the shell pipeline can fall back to local execution.
package sandbox

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	containerPrefix = "ferret-sbx-"
	memoryLimit     = 512 * 1024 * 1024
	cpuQuota        = 100000 // one CPU at the default 100ms period
	pidsLimit       = int64(256)
	stopTimeoutSec  = 5
)

// Manager runs commands inside per-user containers.
type Manager struct {
	cli           *client.Client
	image         string
	workspaceRoot string
	log           *log.Logger

	mu         sync.Mutex
	lastActive map[string]time.Time
}

// New connects to the Docker daemon and verifies it is reachable. Callers
// treat an error as "sandbox disabled".
func New(image, workspaceRoot string, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, err
	}
	return &Manager{
		cli:           cli,
		image:         image,
		workspaceRoot: workspaceRoot,
		log:           logger.WithPrefix("sandbox"),
		lastActive:    make(map[string]time.Time),
	}, nil
}

// MarkActive records recent use of a user's container for the reaper.
func (m *Manager) MarkActive(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActive[userID] = time.Now()
}

// Run executes command in the user's container. The last return value
// reports whether the command was genuinely routed through the sandbox;
// false means the caller should execute locally instead.
func (m *Manager) Run(ctx context.Context, userID, command, cwd string) (bool, string, bool) {
	id, err := m.ensureContainer(ctx, userID)
	if err != nil {
		m.log.Warn("container unavailable", "user", userID, "err", err)
		return false, "", false
	}

	execResp, err := m.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   cwd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		m.log.Warn("exec create failed", "user", userID, "err", err)
		return false, "", false
	}

	attach, err := m.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		m.log.Warn("exec attach failed", "user", userID, "err", err)
		return false, "", false
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		m.log.Warn("exec read failed", "user", userID, "err", err)
		return false, "", false
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		m.log.Warn("exec inspect failed", "user", userID, "err", err)
		return false, "", false
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += stderr.String()
	}
	return inspect.ExitCode == 0, output, true
}

// ensureContainer returns the id of a running container for userID,
// creating and starting it as needed.
func (m *Manager) ensureContainer(ctx context.Context, userID string) (string, error) {
	name := containerPrefix + userID

	info, err := m.cli.ContainerInspect(ctx, name)
	if err == nil {
		if info.State != nil && info.State.Running {
			return info.ID, nil
		}
		if err := m.cli.ContainerStart(ctx, info.ID, container.StartOptions{}); err != nil {
			return "", err
		}
		return info.ID, nil
	}
	if !errdefs.IsNotFound(err) {
		return "", err
	}

	hostDir := m.workspaceRoot + "/" + userID
	pids := pidsLimit
	created, err := m.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      m.image,
			WorkingDir: hostDir,
			Cmd:        []string{"sleep", "infinity"},
		},
		&container.HostConfig{
			Resources: container.Resources{
				Memory:    memoryLimit,
				CPUQuota:  cpuQuota,
				PidsLimit: &pids,
			},
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: hostDir,
				Target: hostDir,
			}},
		},
		nil, nil, name)
	if err != nil {
		return "", err
	}
	if err := m.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", err
	}
	m.log.Info("container created", "user", userID, "id", created.ID[:12])
	return created.ID, nil
}

// StartReaper sweeps for idle containers until ctx is done.
func (m *Manager) StartReaper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		m.log.Info("reaper started", "ttl", ttl, "interval", interval)
		for {
			select {
			case <-ticker.C:
				m.reapIdle(ctx, ttl)
			case <-ctx.Done():
				m.log.Info("reaper shutting down")
				return
			}
		}
	}()
}

// takeExpired removes and returns users idle longer than ttl.
func (m *Manager) takeExpired(ttl time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for userID, last := range m.lastActive {
		if time.Since(last) > ttl {
			expired = append(expired, userID)
			delete(m.lastActive, userID)
		}
	}
	return expired
}

func (m *Manager) reapIdle(ctx context.Context, ttl time.Duration) {
	for _, userID := range m.takeExpired(ttl) {
		name := containerPrefix + userID
		m.log.Info("reaping idle container", "user", userID)
		timeout := stopTimeoutSec
		if err := m.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
			m.log.Warn("stop failed", "user", userID, "err", err)
		}
		if err := m.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			m.log.Warn("remove failed", "user", userID, "err", err)
		}
	}
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	return m.cli.Close()
}

// ContainerName returns the container name used for a user id. Exposed
// for operational tooling.
func ContainerName(userID string) string {
	return containerPrefix + strings.TrimSpace(userID)
}
