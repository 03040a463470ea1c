package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"neural_consensus/internal/backend"
	"neural_consensus/internal/config"
	"neural_consensus/internal/orchestrator"
	sqlitestore "neural_consensus/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.consensus/config.toml)")
	backendFlag := flag.String("backend", "", "consensus backend base URL override")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	logPath := flag.String("log", "data/consensus.log", "log file path")
	dwellFlag := flag.Duration("dwell", 0, "minimum dispatch animation time override")
	exportPath := flag.String("export", "", "write run history to this file (- for stdout) and exit")
	exportFormat := flag.String("export-format", "json", "history export format: json or yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	baseURL := firstNonEmpty(*backendFlag, cfg.Backend.BaseURL, config.DefaultBaseURL)
	dbPath := filepath.Clean(firstNonEmpty(*dbPathFlag, cfg.Storage.DBPath, config.DefaultDBPath))
	dwell := cfg.Dwell()
	if *dwellFlag > 0 {
		dwell = *dwellFlag
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatalf("create db directory: %v", err)
	}
	logger, closeLog, err := openLogger(*logPath, *exportPath != "")
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	defer closeLog()

	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate sqlite: %v", err)
	}

	client, err := backend.New(backend.Config{
		BaseURL: baseURL,
		Timeout: durationMS(cfg.Backend.TimeoutMS, config.DefaultTimeoutMS*time.Millisecond),
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("create backend client: %v", err)
	}

	defaults := cfg.Settings()
	tui := newUI()
	svc, err := orchestrator.New(ctx, store, client, orchestrator.Config{
		Agents:        cfg.RosterAgents(),
		Defaults:      &defaults,
		MaxHistory:    cfg.MaxHistory(),
		Dwell:         dwell,
		AggregateHold: cfg.AggregateHold(),
		OnSelectAgent: tui.openOverride,
	}, logger)
	if err != nil {
		log.Fatalf("create orchestrator: %v", err)
	}

	if *exportPath != "" {
		if err := exportHistory(svc, *exportPath, *exportFormat); err != nil {
			log.Fatalf("export history: %v", err)
		}
		return
	}

	svc.Start(ctx)
	defer svc.Close()

	logger.Printf("consensus started backend=%s db=%s dwell=%s config=%s", baseURL, dbPath, dwell, cfg.Path)

	status := fmt.Sprintf("Connected to %s", baseURL)
	statusCtx, statusCancel := context.WithTimeout(ctx, 3*time.Second)
	if _, err := svc.CheckBackend(statusCtx); err != nil {
		logger.Printf("backend status check failed base_url=%s err=%v", baseURL, err)
		status = fmt.Sprintf("[yellow]Backend %s is not reachable; runs will fail until it is up.[-]", baseURL)
	}
	statusCancel()

	tui.bind(ctx, svc)
	tui.setStatus(status)

	go func() {
		<-ctx.Done()
		tui.app.Stop()
	}()
	if err := tui.run(); err != nil {
		fmt.Fprintf(os.Stderr, "consensus failed: %v\n", err)
		os.Exit(1)
	}
}

func openLogger(path string, toStderr bool) (*log.Logger, func(), error) {
	if toStderr || strings.TrimSpace(path) == "" {
		return log.New(os.Stderr, "", log.LstdFlags), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	log.SetOutput(f)
	return logger, func() { _ = f.Close() }, nil
}

func exportHistory(svc *orchestrator.Service, path, format string) error {
	if path == "-" {
		return svc.ExportHistory(os.Stdout, format)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := svc.ExportHistory(f, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func durationMS(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}
