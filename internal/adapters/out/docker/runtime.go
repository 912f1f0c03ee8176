// Package docker implements the container runtime adapter using Docker API.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/alcove-sh/alcove/internal/domain"
)

// runningPollInterval is how often CreateAndStart re-inspects a started
// container while waiting for the engine to report it running.
const runningPollInterval = 500 * time.Millisecond

// Runtime implements the ContainerRuntime interface using Docker API.
// Addon ports are published on the loopback interface only, so addons stay
// reachable through the gateway and nothing else.
type Runtime struct {
	client    *client.Client
	network   string
	stopGrace int // seconds
	log       *log.Logger
}

// NewRuntime connects to the engine and makes sure the addon network exists.
// An empty sock falls back to the environment (DOCKER_HOST et al).
func NewRuntime(ctx context.Context, sock, networkName string, stopGraceSeconds int, logger *log.Logger) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if sock != "" {
		opts = append(opts, client.WithHost("unix://"+strings.TrimPrefix(sock, "unix://")))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create Docker client: %w", err)
	}

	r := &Runtime{
		client:    cli,
		network:   networkName,
		stopGrace: stopGraceSeconds,
		log:       logger.With("component", "docker"),
	}

	if err := r.ensureNetwork(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return r, nil
}

// NewRuntimeWithClient builds a runtime around an existing client (for testing).
func NewRuntimeWithClient(cli *client.Client, networkName string, stopGraceSeconds int, logger *log.Logger) *Runtime {
	return &Runtime{
		client:    cli,
		network:   networkName,
		stopGrace: stopGraceSeconds,
		log:       logger.With("component", "docker"),
	}
}

func (r *Runtime) ensureNetwork(ctx context.Context) error {
	_, err := r.client.NetworkInspect(ctx, r.network, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !cerrdefs.IsNotFound(err) {
		return mapEngineError("inspect network", err)
	}

	_, err = r.client.NetworkCreate(ctx, r.network, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{domain.LabelManaged: "true"},
	})
	if err != nil {
		return mapEngineError("create network", err)
	}
	r.log.Info("Addon network created", "network", r.network)
	return nil
}

// CreateAndStart provisions one addon container and waits until the engine
// reports it running. On any failure after creation the container is removed
// best-effort so no half-started containers linger.
func (r *Runtime) CreateAndStart(ctx context.Context, spec domain.LaunchSpec) (string, string, error) {
	if err := r.ensureImage(ctx, spec.Image); err != nil {
		return "", "", err
	}

	internalPort := spec.InternalPort
	if internalPort == 0 {
		port, err := r.detectImagePort(ctx, spec.Image)
		if err != nil {
			return "", "", err
		}
		internalPort = port
	}

	containerPort := nat.Port(fmt.Sprintf("%d/tcp", internalPort))
	containerConfig := &container.Config{
		Image:        spec.Image,
		Labels:       spec.Labels,
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(r.network),
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{{
				HostIP:   "127.0.0.1",
				HostPort: "0", // engine assigns a free port
			}},
		},
	}
	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			r.network: {},
		},
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		return "", "", mapEngineError("create container", err)
	}
	ref := resp.ID
	r.log.Debug("Container created", "container", ref, "name", spec.Name)

	if err := r.client.ContainerStart(ctx, ref, container.StartOptions{}); err != nil {
		r.cleanupFailed(ref)
		return "", "", mapEngineError("start container", err)
	}

	if err := r.waitRunning(ctx, ref); err != nil {
		r.cleanupFailed(ref)
		return "", "", err
	}

	endpoint, err := r.resolveEndpoint(ctx, ref, containerPort)
	if err != nil {
		r.cleanupFailed(ref)
		return "", "", err
	}

	r.log.Info("Container running", "container", ref, "endpoint", endpoint)
	return ref, endpoint, nil
}

// ensureImage pulls the image when the engine does not have it yet.
func (r *Runtime) ensureImage(ctx context.Context, imageRef string) error {
	_, err := r.client.ImageInspect(ctx, imageRef)
	if err == nil {
		return nil
	}
	if !cerrdefs.IsNotFound(err) {
		return mapEngineError("inspect image", err)
	}

	r.log.Info("Pulling image", "image", imageRef)
	reader, err := r.client.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return mapEngineError("pull image", err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return mapEngineError("pull image", err)
	}
	return nil
}

// detectImagePort returns the first tcp port the image EXPOSEs.
func (r *Runtime) detectImagePort(ctx context.Context, imageRef string) (int, error) {
	inspect, err := r.client.ImageInspect(ctx, imageRef)
	if err != nil {
		return 0, mapEngineError("inspect image", err)
	}

	var ports []int
	if inspect.Config != nil {
		for portSpec := range inspect.Config.ExposedPorts {
			if portSpec.Proto() != "tcp" {
				continue
			}
			if port, err := strconv.Atoi(portSpec.Port()); err == nil {
				ports = append(ports, port)
			}
		}
	}
	if len(ports) == 0 {
		return 0, fmt.Errorf("%w: image %s exposes no tcp port and the catalog declares none",
			domain.ErrRuntime, imageRef)
	}

	// Deterministic pick when an image exposes several ports.
	min := ports[0]
	for _, p := range ports[1:] {
		if p < min {
			min = p
		}
	}
	return min, nil
}

// waitRunning polls the engine until the container is running. A container
// that exits during startup is reported as a failure immediately.
func (r *Runtime) waitRunning(ctx context.Context, ref string) error {
	ticker := time.NewTicker(runningPollInterval)
	defer ticker.Stop()

	for {
		state, err := r.InspectState(ctx, ref)
		if err != nil {
			return err
		}
		switch state {
		case domain.ContainerStateRunning:
			return nil
		case domain.ContainerStateExited, domain.ContainerStateDead:
			return fmt.Errorf("%w: container %s exited during startup", domain.ErrRuntime, ref)
		}

		select {
		case <-ctx.Done():
			return mapEngineError("wait for container", ctx.Err())
		case <-ticker.C:
		}
	}
}

// resolveEndpoint reads the loopback host port the engine assigned.
func (r *Runtime) resolveEndpoint(ctx context.Context, ref string, containerPort nat.Port) (string, error) {
	resp, err := r.client.ContainerInspect(ctx, ref)
	if err != nil {
		return "", mapEngineError("inspect container", err)
	}
	if resp.NetworkSettings == nil {
		return "", fmt.Errorf("%w: container %s has no network settings", domain.ErrRuntime, ref)
	}

	bindings := resp.NetworkSettings.Ports[containerPort]
	if len(bindings) == 0 {
		return "", fmt.Errorf("%w: port %s of container %s is not published",
			domain.ErrRuntime, containerPort, ref)
	}

	host := bindings[0].HostIP
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return host + ":" + bindings[0].HostPort, nil
}

// cleanupFailed force-removes a container that never became usable. The
// original failure matters more than this one, so errors are only logged.
func (r *Runtime) cleanupFailed(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.client.ContainerRemove(ctx, ref, container.RemoveOptions{Force: true}); err != nil {
		if !cerrdefs.IsNotFound(err) {
			r.log.Warn("Failed to clean up container", "container", ref, "error", err)
		}
	}
}

// Stop gracefully stops the container, killing it after the grace period.
func (r *Runtime) Stop(ctx context.Context, ref string) error {
	timeout := r.stopGrace
	err := r.client.ContainerStop(ctx, ref, container.StopOptions{Timeout: &timeout})
	if err != nil {
		return mapEngineError("stop container", err)
	}
	r.log.Debug("Container stopped", "container", ref)
	return nil
}

// Remove deletes the stopped container from the engine.
func (r *Runtime) Remove(ctx context.Context, ref string) error {
	err := r.client.ContainerRemove(ctx, ref, container.RemoveOptions{})
	if err != nil {
		return mapEngineError("remove container", err)
	}
	r.log.Debug("Container removed", "container", ref)
	return nil
}

// FetchLogs returns up to tail recent lines, stdout and stderr interleaved
// in engine order.
func (r *Runtime) FetchLogs(ctx context.Context, ref string, tail int) ([]string, error) {
	reader, err := r.client.ContainerLogs(ctx, ref, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return nil, mapEngineError("fetch logs", err)
	}
	defer reader.Close()

	// Demultiplex both streams into one buffer so the engine's frame order
	// is preserved.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return nil, mapEngineError("fetch logs", err)
	}

	return splitLogLines(buf.String()), nil
}

func splitLogLines(raw string) []string {
	if raw == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

// InspectState reports the engine state of the container.
func (r *Runtime) InspectState(ctx context.Context, ref string) (domain.ContainerState, error) {
	resp, err := r.client.ContainerInspect(ctx, ref)
	if err != nil {
		return domain.ContainerStateUnknown, mapEngineError("inspect container", err)
	}
	if resp.State == nil {
		return domain.ContainerStateUnknown, nil
	}
	return stateFromEngine(resp.State.Status), nil
}

func stateFromEngine(status string) domain.ContainerState {
	switch status {
	case "running", "restarting", "removing":
		return domain.ContainerStateRunning
	case "created":
		return domain.ContainerStateCreated
	case "exited":
		return domain.ContainerStateExited
	case "paused":
		return domain.ContainerStatePaused
	case "dead":
		return domain.ContainerStateDead
	default:
		return domain.ContainerStateUnknown
	}
}

// Ping checks if the engine is responsive.
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx); err != nil {
		return mapEngineError("ping engine", err)
	}
	return nil
}

// Close releases the engine client.
func (r *Runtime) Close() error {
	return r.client.Close()
}
