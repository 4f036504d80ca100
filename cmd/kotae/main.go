// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// corpusExtensions mirrors the loader's supported formats, for the watcher.
var corpusExtensions = []string{".pdf", ".txt", ".md", ".docx", ".xlsx"}

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory so that running from the project
// dir picks up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "ask":
		runAsk()
	case "retrieve":
		runRetrieve()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kotae <command> [flags]

Commands:
  server     Run the HTTP API server
  index      Build (or force-rebuild) the document index
  ask        Ask a question
  retrieve   Show retrieved chunks for a question (no generation)
  status     Show server health and request metrics
  version    Print version
  help       Show this help
`)
}

func newPipeline(configPath string, debugFlag bool) (*pipeline.Orchestrator, *config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved))
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	return p, cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	p, cfg, logger := newPipeline(*configPath, *debug)
	defer logger.Sync()
	defer p.Close()

	// Warm the index before accepting traffic; a missing corpus is not
	// fatal, questions just get the no-context answer.
	if _, err := p.BuildIndex(context.Background(), false); err != nil {
		logger.Warn("initial index build failed", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		debounce := time.Duration(cfg.Watch.DebounceSeconds) * time.Second
		w := watcher.New(cfg.Storage.DataDir, corpusExtensions, debounce, func() {
			if _, err := p.BuildIndex(context.Background(), true); err != nil {
				logger.Warn("watch re-index failed", zap.Error(err))
			}
		}, logger)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(p, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	force := fs.Bool("force", false, "rebuild even if an index already exists")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	p, _, logger := newPipeline(*configPath, *debug)
	defer logger.Sync()
	defer p.Close()

	count, err := p.BuildIndex(context.Background(), *force)
	if err != nil {
		logger.Fatal("Index build failed", zap.Error(err))
	}
	fmt.Printf("Indexed %d chunks\n", count)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the pipeline locally)")
	topK := fs.Int("top-k", 0, "number of context chunks (0 = server default)")
	noRAG := fs.Bool("no-rag", false, "answer without retrieved context")
	_ = fs.Parse(os.Args[2:])

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	req := &models.AskRequest{Question: question, TopK: *topK}
	if *noRAG {
		useRAG := false
		req.UseRAG = &useRAG
	}

	var (
		resp *models.AskResponse
		err  error
	)
	if *serverURL != "" {
		resp, err = askViaHTTP(*serverURL, req)
	} else {
		p, _, logger := newPipeline(*configPath, false)
		defer logger.Sync()
		defer p.Close()
		resp, err = p.Ask(context.Background(), req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(resp.Sources, ", "))
	}
	fmt.Printf("\n%s\n", resp.Disclaimer)
	fmt.Printf("(%d chunks, %.2fs)\n", resp.NumChunksRetrieved, resp.ProcessingTimeSeconds)
}

func askViaHTTP(serverURL string, req *models.AskRequest) (*models.AskResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runRetrieve() {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of chunks (0 = default)")
	_ = fs.Parse(os.Args[2:])

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "Usage: kotae retrieve [flags] <question>")
		os.Exit(1)
	}

	p, _, logger := newPipeline(*configPath, false)
	defer logger.Sync()
	defer p.Close()

	resp, err := p.Retrieve(context.Background(), &models.RetrieveRequest{Question: question, TopK: *topK})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
		os.Exit(1)
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, rc := range resp.Results {
		fmt.Printf("%d. [%.4f] %s (%s)\n   %s\n", rc.Rank, rc.Score, rc.Chunk.ChunkID, rc.Chunk.Source,
			utils.Truncate(rc.Chunk.Text, 200))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/metrics")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var m models.MetricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(&m)
		return
	}
	fmt.Printf("Uptime:        %.0fs\n", m.UptimeSeconds)
	fmt.Printf("Index size:    %d chunks\n", m.IndexSize)
	fmt.Printf("Model:         %s (loaded: %v)\n", m.Model.Model, m.Model.ModelLoaded)
	fmt.Printf("Queries:       %d (%d errors, %.1f%% error rate)\n",
		m.Stats.TotalQueries, m.Stats.TotalErrors, m.Stats.ErrorRate*100)
	fmt.Printf("Avg latency:   %.3fs\n", m.Stats.AvgLatencySeconds)
}
