// Package llamasrv implements the scheduler's Engine by spawning one
// llama-server process for the resident model and talking to its
// OpenAI-compatible HTTP endpoints.
package llamasrv

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"inferd/internal/scheduler"
	"inferd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultHost           = "127.0.0.1"
	defaultPortStart      = 30000
	defaultPortEnd        = 30099
	defaultStartupTimeout = 60 * time.Second
	defaultStopTimeout    = 5 * time.Second
)

// Config holds spawn-mode settings.
type Config struct {
	// Binary is the llama-server executable path.
	Binary string
	// Host to bind the spawned server on.
	Host string
	// PortStart/PortEnd bound the port search range.
	PortStart int
	PortEnd   int
	// CtxSize, Threads and ExtraArgs are forwarded to llama-server.
	CtxSize   int
	Threads   int
	ExtraArgs []string
	// StartupTimeout bounds how long Load waits for the server to get healthy.
	StartupTimeout time.Duration
	// Logger, when set, receives structured logs.
	Logger *zerolog.Logger
}

// Adapter spawns and owns at most one llama-server at a time; the scheduler's
// load mutex serializes Load/Unload so no bookkeeping map is needed here.
type Adapter struct {
	cfg        Config
	log        zerolog.Logger
	httpClient *http.Client
}

var _ scheduler.Engine = (*Adapter)(nil)

// New constructs a spawn-mode adapter.
func New(cfg Config) *Adapter {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.PortStart <= 0 || cfg.PortEnd < cfg.PortStart {
		cfg.PortStart, cfg.PortEnd = defaultPortStart, defaultPortEnd
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	a := &Adapter{cfg: cfg, log: zerolog.Nop(), httpClient: &http.Client{}}
	if cfg.Logger != nil {
		a.log = *cfg.Logger
	}
	return a
}

// handle is the loaded-model resource: the subprocess plus a client bound to
// its endpoint.
type handle struct {
	model   types.Model
	cmd     *exec.Cmd
	baseURL string
	client  openai.Client
	exited  chan error
}

// Load spawns llama-server for the model and waits until it is healthy.
func (a *Adapter) Load(ctx context.Context, mdl types.Model) (scheduler.ModelHandle, error) {
	bin := strings.TrimSpace(a.cfg.Binary)
	if bin == "" {
		return nil, scheduler.ErrDependencyUnavailable("llama-server binary not configured")
	}
	if fi, err := os.Stat(bin); err != nil || fi.IsDir() {
		return nil, scheduler.ErrDependencyUnavailable("llama-server not found at " + bin)
	}

	port, err := pickPortInRange(a.cfg.Host, a.cfg.PortStart, a.cfg.PortEnd)
	if err != nil {
		return nil, err
	}
	baseURL := fmt.Sprintf("http://%s:%d", a.cfg.Host, port)

	args := []string{
		"-m", mdl.Path,
		"--host", a.cfg.Host,
		"--port", fmt.Sprint(port),
	}
	if a.cfg.CtxSize > 0 {
		args = append(args, "-c", fmt.Sprint(a.cfg.CtxSize))
	}
	if a.cfg.Threads > 0 {
		args = append(args, "-t", fmt.Sprint(a.cfg.Threads))
	}
	args = append(args, a.cfg.ExtraArgs...)

	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	a.log.Info().Str("model", mdl.ID).Int("pid", cmd.Process.Pid).Int("port", port).Msg("llama-server spawned")

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if err := a.waitHealthy(ctx, baseURL, exited); err != nil {
		stop(cmd, exited)
		return nil, fmt.Errorf("llama-server for %s never got healthy: %w", mdl.ID, err)
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL+"/v1"),
		option.WithAPIKey("sk-no-key-required"),
	)
	return &handle{model: mdl, cmd: cmd, baseURL: baseURL, client: client, exited: exited}, nil
}

// Unload stops the model's subprocess.
func (a *Adapter) Unload(h scheduler.ModelHandle) error {
	hd, ok := h.(*handle)
	if !ok || hd.cmd == nil {
		return nil
	}
	a.log.Info().Str("model", hd.model.ID).Int("pid", hd.cmd.Process.Pid).Msg("stopping llama-server")
	stop(hd.cmd, hd.exited)
	return nil
}

func (a *Adapter) waitHealthy(ctx context.Context, baseURL string, exited chan error) error {
	deadline := time.Now().Add(a.cfg.StartupTimeout)
	for {
		if a.isHealthy(baseURL) {
			return nil
		}
		select {
		case err := <-exited:
			if err == nil {
				err = fmt.Errorf("process exited before becoming healthy")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup timeout after %s", a.cfg.StartupTimeout)
		}
	}
}

func (a *Adapter) isHealthy(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func stop(cmd *exec.Cmd, exited chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(defaultStopTimeout):
		_ = cmd.Process.Kill()
		<-exited
	}
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}
