package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ayusman/kestrel/internal/app"
	"github.com/ayusman/kestrel/internal/config"
	"github.com/ayusman/kestrel/internal/logging"
	"github.com/ayusman/kestrel/internal/pipeline"
	"github.com/ayusman/kestrel/internal/server"
	"github.com/ayusman/kestrel/internal/store"
	"github.com/ayusman/kestrel/internal/tray"
)

// settings is the process configuration read from the environment.
type settings struct {
	Addr       string
	Source     string
	DataDir    string
	ConfigFile string
	HooksDir   string
	WebDir     string
	Tray       bool
}

func loadSettings() (settings, error) {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	dataDir := os.Getenv("KESTREL_DATA_DIR")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return settings{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".kestrel")
	}

	s := settings{
		Addr:       envOr("KESTREL_ADDR", ":8080"),
		Source:     envOr("KESTREL_SOURCE", "0"),
		DataDir:    dataDir,
		ConfigFile: os.Getenv("KESTREL_CONFIG"),
		HooksDir:   envOr("KESTREL_HOOKS_DIR", filepath.Join(dataDir, "hooks")),
		WebDir:     os.Getenv("KESTREL_WEB_DIR"),
		Tray:       os.Getenv("KESTREL_TRAY") == "1",
	}
	if s.WebDir == "" {
		s.WebDir = findWebDir(dataDir)
	}
	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	logging.SetDir(filepath.Join(cfg.DataDir, "logs"))
	logging.Info(logging.Fields{"source": cfg.Source, "data": cfg.DataDir}, "Kestrel - motion and color anomaly detection")

	svc, err := newService(cfg)
	if err != nil {
		logging.Fatal(logging.Fields{"error": err}, "Failed to initialize")
	}
	defer svc.close()

	if !cfg.Tray {
		if err := svc.serve(nil); err != nil {
			logging.Error(logging.Fields{"error": err}, "Kestrel failed")
			svc.close()
			os.Exit(1)
		}
		return
	}

	quit := make(chan struct{})
	t := tray.New(svc.app)
	t.OnSettings(func() { openBrowser(dashboardURL(cfg.Addr)) })
	t.OnQuit(func() { close(quit) })
	svc.orch.Subscribe(t)

	serveErr := make(chan error, 1)
	t.Run(func() {
		go func() {
			serveErr <- svc.serve(quit)
			t.Quit()
		}()
	})
	if err := <-serveErr; err != nil {
		logging.Error(logging.Fields{"error": err}, "Kestrel failed")
	}
}

// service holds the long-lived components of a running instance.
type service struct {
	cfg   settings
	store *store.Store
	orch  *pipeline.Orchestrator
	app   *app.App
	srv   *server.Server
}

func newService(cfg settings) (*service, error) {
	st, err := store.New(filepath.Join(cfg.DataDir, "kestrel.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	detectCfg, err := initialConfig(cfg.ConfigFile, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	orch := pipeline.New(config.NewHolder(detectCfg))

	a := app.New(app.Config{
		Store:   st,
		HookDir: cfg.HooksDir,
		Source:  cfg.Source,
	}, orch)
	if err := a.LoadSettings(); err != nil {
		logging.Warn(logging.Fields{"error": err}, "Failed to load settings")
	}
	if err := a.DiscoverHooks(); err != nil {
		logging.Warn(logging.Fields{"error": err, "dir": cfg.HooksDir}, "Failed to discover hooks")
	}

	srv := server.New(server.Config{
		StaticDir: cfg.WebDir,
		Store:     st,
		Pipeline:  orch,
		Frames:    a,
		Toggle:    a,
		Metrics:   orch.MetricsCollector().Handler(),
	})
	orch.Subscribe(srv.Hub())

	return &service{cfg: cfg, store: st, orch: orch, app: a, srv: srv}, nil
}

// serve runs capture and the HTTP API until a signal arrives, quit is
// closed or the server fails.
func (s *service) serve(quit <-chan struct{}) error {
	if err := s.app.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.srv.ListenAndServe(s.cfg.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := s.app.Done()
	var runErr error
	for stop := false; !stop; {
		select {
		case sig := <-sigCh:
			logging.Info(logging.Fields{"signal": sig.String()}, "Shutting down")
			stop = true
		case <-quit:
			logging.Info(nil, "Quit requested")
			stop = true
		case <-done:
			logging.Info(nil, "Source finished, API stays up until interrupted")
			done = nil
		case err := <-serverErr:
			if err != nil {
				runErr = fmt.Errorf("server failed: %w", err)
			}
			stop = true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		logging.Warn(logging.Fields{"error": err}, "HTTP shutdown incomplete")
	}
	return runErr
}

func (s *service) close() {
	s.app.Close()
	s.orch.Close()
	if err := s.store.Close(); err != nil {
		logging.Warn(logging.Fields{"error": err}, "Failed to close store")
	}
}

// initialConfig picks the starting detection config: the file named by
// KESTREL_CONFIG, else the last applied preset, else the defaults.
func initialConfig(path string, st *store.Store) (config.DetectionConfig, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return config.DetectionConfig{}, fmt.Errorf("failed to load config: %w", err)
		}
		logging.Info(logging.Fields{"file": path}, "Loaded detection config")
		return cfg, nil
	}

	name, err := st.Settings().Get(store.SettingActivePreset)
	if errors.Is(err, store.ErrNotFound) {
		return config.Default(), nil
	}
	if err != nil {
		return config.DetectionConfig{}, err
	}

	preset, err := st.Presets().GetByName(name)
	if err != nil {
		logging.Warn(logging.Fields{"preset": name, "error": err}, "Active preset unavailable, using defaults")
		return config.Default(), nil
	}
	cfg, err := config.Parse(preset.Config)
	if err != nil {
		logging.Warn(logging.Fields{"preset": name, "error": err}, "Active preset invalid, using defaults")
		return config.Default(), nil
	}
	logging.Info(logging.Fields{"preset": name}, "Restored detection preset")
	return cfg, nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logging.Warn(logging.Fields{"error": err, "url": url}, "Failed to open browser")
	}
}
