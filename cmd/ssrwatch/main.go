// Command ssrwatch classifies page elements as server- or client-rendered.
//
// Usage:
//
//	ssrwatch -config ssrwatch.yaml          # daemon mode: observe pages from YAML config
//	ssrwatch -url https://example.com       # one-shot: classify a single URL and print the report
//	ssrwatch -detect https://example.com    # run the prerender heuristic and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/leochiu-a/chrome-ssr-inspector/idgen"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch"
)

func main() {
	configPath := flag.String("config", "", "path to ssrwatch.yaml config file")
	singleURL := flag.String("url", "", "classify a single URL and print the report")
	detectURL := flag.String("detect", "", "run the prerender heuristic on a URL and exit")
	settle := flag.Duration("settle", 5*time.Second, "monitoring time before the one-shot report")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *detectURL, *settle); err != nil {
		logger.Error("ssrwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, detectURL string, settle time.Duration) error {
	if detectURL != "" {
		return runDetect(ctx, logger, detectURL)
	}
	if singleURL != "" {
		return runSingle(ctx, logger, singleURL, settle)
	}
	if configPath != "" {
		return runConfig(ctx, logger, configPath)
	}

	fmt.Fprintln(os.Stderr, "usage: ssrwatch -config <file> | -url <url> | -detect <url>")
	os.Exit(1)
	return nil
}

func runDetect(ctx context.Context, logger *slog.Logger, url string) error {
	w, err := ssrwatch.New(defaultConfig(), logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	res, err := w.Detect(ctx, url)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	out, _ := json.Marshal(res.Detection)
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
	return nil
}

// runSingle classifies one page: observe, let the client run for the
// settle window, then print a report and exit.
func runSingle(ctx context.Context, logger *slog.Logger, url string, settle time.Duration) error {
	w, err := ssrwatch.New(defaultConfig(), logger, ssrwatch.NewStdoutSink(os.Stderr))
	if err != nil {
		return err
	}
	defer w.Stop()

	pageID := idgen.New()
	if err := w.ObservePage(ctx, ssrwatch.PageConfig{ID: pageID, URL: url, Mode: "auto"}); err != nil {
		return fmt.Errorf("observe: %w", err)
	}

	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}

	rep, err := w.Report(ctx, pageID)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	out, _ := json.MarshalIndent(rep, "", "  ")
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
	return nil
}

func runConfig(ctx context.Context, logger *slog.Logger, path string) error {
	cfg, err := ssrwatch.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sinks := ssrwatch.SinksFromConfig(cfg.Sinks, os.Stdout, logger)
	if len(sinks) == 0 {
		sinks = append(sinks, ssrwatch.NewStdoutSink(nil))
	}

	w, err := ssrwatch.New(cfg, logger, sinks...)
	if err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		api := ssrwatch.NewHTTPServer(w, cfg.HTTP, logger)
		go func() {
			if err := api.ListenAndServe(); err != nil {
				logger.Error("ssrwatch: http api", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			api.Shutdown(shutCtx)
		}()
	}

	<-ctx.Done()
	w.Stop()
	return nil
}

func defaultConfig() *ssrwatch.Config {
	return &ssrwatch.Config{
		Browser: ssrwatch.BrowserConfig{
			NavTimeout:  30 * time.Second,
			MemoryLimit: 1 << 30,
			Stealth:     true,
		},
		Debounce: ssrwatch.DebounceConfig{
			Window:    250 * time.Millisecond,
			MaxBuffer: 1000,
		},
	}
}
