// Package docker supervises the conversion engine sidecar container. It is
// optional: deployments that run the engine themselves skip it entirely.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// EngineSpec describes the sidecar to keep alive.
type EngineSpec struct {
	Image         string
	ContainerName string
	Port          int    // engine listen port inside the container
	HostPort      int    // published port on the host
	HealthURL     string // polled until the engine answers 200
}

type EngineManager struct {
	logger *slog.Logger
	cli    *client.Client
	spec   EngineSpec
}

func NewEngineManager(logger *slog.Logger, spec EngineSpec) (*EngineManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &EngineManager{logger: logger, cli: cli, spec: spec}, nil
}

// EnsureRunning makes sure the engine container exists, is started, and
// answers its health endpoint. Idempotent: an already-healthy sidecar is
// left untouched.
func (m *EngineManager) EnsureRunning(ctx context.Context) error {
	inspect, err := m.cli.ContainerInspect(ctx, m.spec.ContainerName)
	switch {
	case err == nil && inspect.State != nil && inspect.State.Running:
		m.logger.Info("engine container already running", "container", m.spec.ContainerName)
		return m.waitHealthy(ctx)
	case err == nil:
		if err := m.cli.ContainerStart(ctx, m.spec.ContainerName, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start engine container: %w", err)
		}
		return m.waitHealthy(ctx)
	case client.IsErrNotFound(err):
		// fall through to create
	default:
		return fmt.Errorf("failed to inspect engine container: %w", err)
	}

	if err := m.create(ctx); err != nil {
		return err
	}
	if err := m.cli.ContainerStart(ctx, m.spec.ContainerName, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start engine container: %w", err)
	}
	m.logger.Info("engine container started", "container", m.spec.ContainerName, "image", m.spec.Image)
	return m.waitHealthy(ctx)
}

func (m *EngineManager) create(ctx context.Context) error {
	enginePort := nat.Port(fmt.Sprintf("%d/tcp", m.spec.Port))

	cfg := &container.Config{
		Image: m.spec.Image,
		ExposedPorts: nat.PortSet{
			enginePort: struct{}{},
		},
		Labels: map[string]string{
			"pdf2md.managed": "true",
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			enginePort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", m.spec.HostPort)},
			},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}
	netCfg := &network.NetworkingConfig{}

	_, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, m.spec.ContainerName)
	if client.IsErrNotFound(err) {
		reader, pullErr := m.cli.ImagePull(ctx, m.spec.Image, image.PullOptions{})
		if pullErr != nil {
			return fmt.Errorf("failed to pull engine image %s: %w", m.spec.Image, pullErr)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
		_, err = m.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, m.spec.ContainerName)
	}
	if err != nil {
		return fmt.Errorf("failed to create engine container: %w", err)
	}
	return nil
}

// waitHealthy polls the engine health endpoint until it answers or the
// deadline expires. Conversion requests fail fast against a dead engine
// anyway; this only makes startup ordering deterministic.
func (m *EngineManager) waitHealthy(ctx context.Context) error {
	if m.spec.HealthURL == "" {
		return nil
	}
	httpClient := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(60 * time.Second)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		resp, err := httpClient.Get(m.spec.HealthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				m.logger.Info("engine healthy", "url", m.spec.HealthURL)
				return nil
			}
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("engine at %s did not become healthy in time", m.spec.HealthURL)
}

// Stop stops the engine container. The container is kept around so the next
// boot can reuse it and its pulled image.
func (m *EngineManager) Stop(ctx context.Context) error {
	timeout := 10
	err := m.cli.ContainerStop(ctx, m.spec.ContainerName, container.StopOptions{Timeout: &timeout})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to stop engine container: %w", err)
	}
	return nil
}
