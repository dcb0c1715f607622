package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/runbox/internal/metrics"
)

type DockerConfig struct {
	DefaultImage  string
	MemoryLimitMb int
	MaxOutput     int
}

// DockerSandbox runs each step in a fresh container with the job directory
// bind-mounted at the same path, so rendered commands work unchanged.
type DockerSandbox struct {
	cli    *client.Client
	logger *zerolog.Logger
	conf   DockerConfig
}

func NewDockerSandbox(logger *zerolog.Logger, conf DockerConfig) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerSandbox{cli: cli, logger: logger, conf: conf}, nil
}

func (s *DockerSandbox) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}
	img := cfg.Image
	if img == "" {
		img = s.conf.DefaultImage
	}

	cmd := cfg.Cmd
	if cfg.StdinFile != "" {
		// $0 carries the input path, "$@" the real command
		cmd = append([]string{"sh", "-c", `exec "$@" < "$0"`, cfg.StdinFile}, cfg.Cmd...)
	}

	// Security: Limit PID count to prevent fork bombs
	pidsLimit := int64(64)
	memory := int64(s.conf.MemoryLimitMb) * 1024 * 1024

	createStart := time.Now()
	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image:           img,
		Cmd:             cmd,
		WorkingDir:      cfg.Dir,
		NetworkDisabled: true,
		// files written by the step must stay removable by the service
		User: fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}, &container.HostConfig{
		Binds:       []string{fmt.Sprintf("%s:%s:rw", cfg.Dir, cfg.Dir)},
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:     memory,
			MemorySwap: memory, // No swap allowed
			CPUQuota:   100000, // 1 CPU
			PidsLimit:  &pidsLimit,
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=16m,mode=1777",
		},
	}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: create container: %v", ErrSpawn, err)
	}
	defer s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: start container: %v", ErrSpawn, err)
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(createStart).Milliseconds()))
	s.logger.Debug().Str("container", resp.ID).Strs("cmd", cmd).Msg("container started")

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.TimeLimit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.TimeLimit)
	}
	defer cancel()

	startTime := time.Now()
	statusCh, errCh := s.cli.ContainerWait(context.Background(), resp.ID, container.WaitConditionNotRunning)

	result := &Result{}
	select {
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
		result.TimeMs = time.Since(startTime).Milliseconds()
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-runCtx.Done():
		// killing the container takes every process in it down
		if err := s.cli.ContainerKill(context.Background(), resp.ID, "KILL"); err != nil {
			s.logger.Warn().Err(err).Str("container", resp.ID).Msg("failed to kill container")
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("step cancelled: %w", ctx.Err())
		}
		result.TimedOut = true
		result.ExitCode = -1
		result.TimeMs = cfg.TimeLimit.Milliseconds()
	}

	logs, err := s.cli.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	stdout := newCappedBuffer(s.conf.MaxOutput)
	stderr := newCappedBuffer(s.conf.MaxOutput)
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		return nil, fmt.Errorf("failed to capture container logs: %w", err)
	}
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Truncated = stdout.Truncated() || stderr.Truncated()

	return result, nil
}

func (s *DockerSandbox) EnsureImage(ctx context.Context, img string) error {
	if img == "" {
		img = s.conf.DefaultImage
	}
	if _, err := s.cli.ImageInspect(ctx, img); err == nil {
		return nil // Image already exists
	}

	s.logger.Info().Str("image", img).Msg("pulling docker image")
	reader, err := s.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()

	// Important: must consume the reader to finish the pull
	_, _ = io.Copy(io.Discard, reader)

	s.logger.Info().Str("image", img).Msg("successfully pulled docker image")
	return nil
}
