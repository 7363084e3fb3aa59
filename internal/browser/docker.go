package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/playwright-community/playwright-go"

	"github.com/uiwatch/uiwatch/internal/driver"
)

const defaultBrowserImage = "browserless/chrome:latest"

// DockerLauncher runs each browser in its own container and attaches a
// Playwright client over CDP. Containers are labelled so strays can be
// identified after a crash.
type DockerLauncher struct {
	cli   *client.Client
	pw    *playwright.Playwright
	image string
}

// NewDockerLauncher connects to the local Docker daemon and starts a
// Playwright runtime for the CDP client side.
func NewDockerLauncher(image string) (*DockerLauncher, error) {
	if image == "" {
		image = defaultBrowserImage
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &DockerLauncher{cli: cli, pw: pw, image: image}, nil
}

// EnsureImage pulls the browser image if it is not present locally.
func (l *DockerLauncher) EnsureImage(ctx context.Context) error {
	images, err := l.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == l.image {
				return nil
			}
		}
	}

	reader, err := l.cli.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Launch starts a browser container, waits for its CDP endpoint, and
// attaches a Playwright page to it. Closing the returned handle stops and
// removes the container.
func (l *DockerLauncher) Launch(ctx context.Context, sessionID string) (driver.Handle, error) {
	containerConfig := &container.Config{
		Image: l.image,
		Labels: map[string]string{
			"session-id": sessionID,
			"managed-by": "uiwatch",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
		},
		ExposedPorts: nat.PortSet{
			"3000/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"3000/tcp": []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: "0"},
			},
		},
	}

	name := fmt.Sprintf("uiwatch-%s", shortID(sessionID))
	resp, err := l.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := l.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		l.stopContainer(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports["3000/tcp"]
	if len(bindings) == 0 {
		l.stopContainer(resp.ID)
		return nil, fmt.Errorf("container exposed no CDP port")
	}
	port := bindings[0].HostPort

	if err := waitForCDPReady(port); err != nil {
		l.stopContainer(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	b, err := l.pw.Chromium.ConnectOverCDP(fmt.Sprintf("ws://localhost:%s", port))
	if err != nil {
		l.stopContainer(resp.ID)
		return nil, fmt.Errorf("failed to attach over CDP: %w", err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: viewportWidth, Height: viewportHeight},
	})
	if err != nil {
		b.Close()
		l.stopContainer(resp.ID)
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		l.stopContainer(resp.ID)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	containerID := resp.ID
	return driver.NewPageHandle(b, bctx, page, func() error {
		return l.stopContainer(containerID)
	}), nil
}

func (l *DockerLauncher) stopContainer(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := 10
	if err := l.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := l.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Close stops the Playwright runtime and the Docker client connection.
func (l *DockerLauncher) Close() error {
	if err := l.pw.Stop(); err != nil {
		l.cli.Close()
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return l.cli.Close()
}

// waitForCDPReady polls the container's /json/version endpoint until the
// browser answers.
func waitForCDPReady(port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	maxRetries := 20 // 10 seconds total

	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				// Give the WebSocket side a moment to come up too.
				time.Sleep(500 * time.Millisecond)
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
