// Package main is the tcmkb CLI entry point.
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

	"github.com/hyperjump/tcmkb/internal/cli"
	"github.com/hyperjump/tcmkb/internal/config"
	"github.com/hyperjump/tcmkb/internal/embedding"
	"github.com/hyperjump/tcmkb/internal/extract"
	"github.com/hyperjump/tcmkb/internal/indexer"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/search"
	"github.com/hyperjump/tcmkb/internal/server"
	"github.com/hyperjump/tcmkb/internal/storage"
	"github.com/hyperjump/tcmkb/internal/vector"
	"github.com/hyperjump/tcmkb/internal/watcher"
	"github.com/hyperjump/tcmkb/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tcmkb/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence if it exists. Variables from ./.env
// are loaded first so they can override file values.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", fmt.Errorf("load .env: %w", err)
	}
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
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "kb":
		runKnowledgeBase()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "retrieve":
		runRetrieve()
	case "reprocess":
		runReprocess()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("tcmkb version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, creates the logger and initializes components, exiting on failure.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	cfg.Debug = debugMode
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.String("driver", cfg.Storage.Driver))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (request log, file ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	proc := components.Processor
	ctx := context.Background()
	if n, err := proc.ReprocessPending(ctx); err != nil {
		logger.Warn("reprocess pending documents failed", zap.Int("processed", n), zap.Error(err))
	} else if n > 0 {
		logger.Info("reprocessed pending documents", zap.Int("count", n))
	}

	pool := indexer.NewPool(proc, cfg.Processing.Workers, cfg.Processing.QueueSize,
		time.Duration(cfg.Processing.TimeoutSeconds)*time.Second, logger)
	defer pool.Close()

	exts := cfg.Watch.Extensions
	watchOpts := []watcher.WatcherOption{}
	if cfg.Debug {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		func(kbID, path string) {
			if _, err := proc.IngestFile(context.Background(), kbID, path, exts); err != nil {
				logger.Warn("watch ingest file failed", zap.String("knowledge_base_id", kbID), zap.String("path", path), zap.Error(err))
			}
		},
		func(kbID, path string) {
			if err := proc.DeleteFile(context.Background(), kbID, path); err != nil {
				logger.Warn("watch delete file failed", zap.String("knowledge_base_id", kbID), zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(components.Engine, proc, pool, components.Storage, cfg, logger)
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
	watchSvc.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(stopCtx)
}

func runKnowledgeBase() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tcmkb kb <create|list|activate|deactivate> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("kb "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	name := fs.String("name", "", "knowledge base name (create)")
	description := fs.String("description", "", "knowledge base description (create)")
	model := fs.String("model", "", "embedding model name (create; default from config)")
	searchType := fs.String("search-type", "", "embedding, keywords or blend (create; default from config)")
	topK := fs.Int("top-k", 0, "default result count (create; default from config)")
	_ = fs.Parse(os.Args[3:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	printer := &cli.Printer{W: os.Stdout, Format: format}

	switch sub {
	case "create":
		in := models.KnowledgeBaseInput{
			Name:           *name,
			Description:    *description,
			EmbeddingModel: *model,
			SearchType:     models.SearchType(*searchType),
			TopK:           *topK,
		}
		kb, err := components.Engine.CreateKnowledgeBase(ctx, in, search.KnowledgeBaseDefaults(cfg.KnowledgeBase))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
			os.Exit(1)
		}
		if err := printer.KnowledgeBases([]*models.KnowledgeBase{kb}); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "list":
		kbs, err := components.Storage.ListKnowledgeBases(ctx, 0, -1)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		if err := printer.KnowledgeBases(kbs); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "activate", "deactivate":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: tcmkb kb %s <knowledge-base-id>\n", sub)
			os.Exit(1)
		}
		if err := components.Storage.SetKnowledgeBaseActive(ctx, fs.Arg(0), sub == "activate"); err != nil {
			fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Knowledge base %s: %sd\n", fs.Arg(0), sub)
	default:
		fmt.Printf("Unknown kb subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kbID := fs.String("kb", "", "target knowledge base id (required)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 || *kbID == "" {
		fmt.Println("Usage: tcmkb ingest -kb <knowledge-base-id> [flags] <file-or-directory>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Processor.IngestDirectory(ctx, *kbID, path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter
	doc, err := components.Processor.IngestFile(ctx, *kbID, path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	printer := &cli.Printer{W: os.Stdout, Format: format}
	if err := printer.Document(doc); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tcmkb watch <add|remove|list> [flags] [path]")
		fmt.Println("  tcmkb watch add -kb <id> <path>  Ingest files under path into a knowledge base")
		fmt.Println("  tcmkb watch remove <path>        Stop watching path")
		fmt.Println("  tcmkb watch list                 List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kbID := fs.String("kb", "", "knowledge base id (add)")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "add":
		if fs.NArg() < 1 || *kbID == "" {
			fmt.Println("Usage: tcmkb watch add -kb <knowledge-base-id> <path>")
			os.Exit(1)
		}
		_, logger, components := setup(*configPath, false)
		_, err := components.Storage.GetKnowledgeBase(context.Background(), *kbID)
		components.Close()
		_ = logger.Sync()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Knowledge base %s: %v\n", *kbID, err)
			os.Exit(1)
		}
		_, loaded, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		if err := config.AddWatchDirectory(loaded, fs.Arg(0), *kbID); err != nil {
			fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Watching %s for knowledge base %s (restart the server to apply)\n", fs.Arg(0), *kbID)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: tcmkb watch remove <path>")
			os.Exit(1)
		}
		_, loaded, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		removed, err := config.RemoveWatchDirectory(loaded, fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Remove failed: %v\n", err)
			os.Exit(1)
		}
		if !removed {
			fmt.Printf("%s is not watched\n", fs.Arg(0))
			os.Exit(1)
		}
		fmt.Printf("Stopped watching %s (restart the server to apply)\n", fs.Arg(0))
	case "list":
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		if len(cfg.Watch.Directories) == 0 {
			fmt.Println("No watched directories")
			return
		}
		for _, d := range cfg.Watch.Directories {
			fmt.Printf("%s\t%s\n", d.Path, d.KnowledgeBaseID)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// splitIDs parses a comma separated id list, dropping blanks.
func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// thresholdFlag returns nil for a negative flag value, meaning the knowledge base default.
func thresholdFlag(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	kbID := fs.String("kb", "", "knowledge base id (required)")
	topK := fs.Int("top-k", 0, "number of results (0 = knowledge base default)")
	searchType := fs.String("type", "", "embedding, keywords or blend (empty = knowledge base default)")
	threshold := fs.Float64("threshold", -1, "similarity threshold in [0,1] (negative = knowledge base default)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable) or json (parseable)")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" || *kbID == "" {
		fmt.Println("Usage: tcmkb search -kb <knowledge-base-id> [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := &models.SearchRequest{
		KnowledgeBaseID: *kbID,
		Query:           query,
		TopK:            *topK,
		SearchType:      models.SearchType(*searchType),
		Threshold:       thresholdFlag(*threshold),
	}

	var resp models.SearchResponse
	previewLength := 0
	if *serverURL != "" {
		if err := postJSON(*serverURL+"/api/v1/search", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		previewLength = cfg.Search.PreviewLength
		res, err := components.Engine.Search(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		resp = *res
	}
	printer := &cli.Printer{W: os.Stdout, Format: format, PreviewLength: previewLength}
	if err := printer.SearchResults(&resp); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRetrieve() {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	kbIDs := fs.String("kb", "", "comma separated knowledge base ids (required)")
	topK := fs.Int("top-k", 0, "number of results (0 = largest knowledge base default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	ids := splitIDs(*kbIDs)
	if query == "" || len(ids) == 0 {
		fmt.Println("Usage: tcmkb retrieve -kb <id>[,<id>...] [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := &models.RetrieveRequest{KnowledgeBaseIDs: ids, Query: query, TopK: *topK}

	var resp models.RetrieveResponse
	previewLength := 0
	if *serverURL != "" {
		if err := postJSON(*serverURL+"/api/v1/retrieve", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		previewLength = cfg.Search.PreviewLength
		res, err := components.Engine.Retrieve(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
			os.Exit(1)
		}
		resp = *res
	}
	printer := &cli.Printer{W: os.Stdout, Format: format, PreviewLength: previewLength}
	if err := printer.RetrieveResults(&resp); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// postJSON posts body to url and decodes a 200 response into out.
func postJSON(url string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runReprocess() {
	fs := flag.NewFlagSet("reprocess", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	if fs.NArg() == 0 {
		n, err := components.Processor.ReprocessPending(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Reprocess failed after %d document(s): %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Reprocessed %d unfinished document(s)\n", n)
		return
	}
	for _, id := range fs.Args() {
		if err := components.Processor.Reprocess(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Reprocess %s failed: %v\n", id, err)
			os.Exit(1)
		}
		fmt.Printf("Document reprocessed: %s\n", id)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: tcmkb delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if err := components.Processor.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	KnowledgeBases  int      `json:"knowledge_bases"`
	Documents       int64    `json:"documents"`
	Vectors         int64    `json:"vectors"`
	StorageDriver   string   `json:"storage_driver"`
	EmbeddingModels []string `json:"embedding_models"`
	DiskUsageBytes  *int64   `json:"disk_usage_bytes,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *statusResponse
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		status, err = statusDirect(context.Background(), cfg, components)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusDirect(ctx context.Context, cfg *config.Config, c *Components) (*statusResponse, error) {
	kbs, err := c.Storage.ListKnowledgeBases(ctx, 0, -1)
	if err != nil {
		return nil, err
	}
	status := &statusResponse{KnowledgeBases: len(kbs), StorageDriver: cfg.Storage.Driver}
	status.EmbeddingModels = c.Registry.Models()
	for _, kb := range kbs {
		stats, err := c.Engine.Stats(ctx, kb.ID)
		if err != nil {
			return nil, err
		}
		status.Documents += int64(stats.DocumentCount)
		status.Vectors += int64(stats.VectorCount)
	}
	if cfg.Storage.Driver == config.DriverSQLite {
		paths := append(storage.SQLiteFiles(cfg.Storage.DatabasePath), cfg.Storage.UploadDir)
		if n, err := storage.DiskUsageBytes(paths...); err == nil {
			status.DiskUsageBytes = &n
		}
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func writeStatus(w io.Writer, s *statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		return cli.WriteJSON(w, s)
	}
	fmt.Fprintf(w, "knowledge_bases:    %d\n", s.KnowledgeBases)
	fmt.Fprintf(w, "documents:          %d\n", s.Documents)
	fmt.Fprintf(w, "vectors:            %d   # paragraphs with embeddings\n", s.Vectors)
	fmt.Fprintf(w, "storage_driver:     %s\n", s.StorageDriver)
	fmt.Fprintf(w, "embedding_models:   %s\n", strings.Join(s.EmbeddingModels, ", "))
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + uploads on disk\n", *s.DiskUsageBytes)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Registry  *embedding.Registry
	Stores    *vector.Stores
	Engine    *search.Engine
	Processor *indexer.Processor
}

func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	backend, err := vector.NewBackend(store, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector backend: %w", err)
	}
	registry, err := embedding.BuildRegistry(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedding models: %w", err)
	}
	logger.Info("storage initialized",
		zap.String("driver", cfg.Storage.Driver),
		zap.Strings("embedding_models", registry.Models()))

	stores := vector.NewStores(backend, registry, logger)
	engine := search.NewEngine(store, stores, cfg.Search, logger)

	extractOpts := []extract.ExtractorOption{extract.WithMaxLength(cfg.Search.SegmentMaxLength)}
	procOpts := []indexer.ProcessorOption{}
	if cfg.Debug {
		extractOpts = append(extractOpts, extract.WithLogger(logger))
		procOpts = append(procOpts, indexer.WithLogger(logger))
	}
	proc := indexer.NewProcessor(store, stores, extract.NewExtractor(extractOpts...), cfg.Storage.UploadDir, procOpts...)

	return &Components{
		Storage:   store,
		Registry:  registry,
		Stores:    stores,
		Engine:    engine,
		Processor: proc,
	}, nil
}

func printUsage() {
	fmt.Println(`tcmkb - Traditional Chinese Medicine knowledge base retrieval engine

Usage:
  tcmkb server [flags]                      Start the HTTP server
  tcmkb kb create -name <name> [flags]      Create a knowledge base
  tcmkb kb list [flags]                     List knowledge bases
  tcmkb kb activate|deactivate <id>         Toggle a knowledge base
  tcmkb ingest -kb <id> <file-or-dir>       Ingest documents into a knowledge base
  tcmkb search -kb <id> [flags] <query>     Search one knowledge base
  tcmkb retrieve -kb <id,id> [flags] <q>    Retrieve chat context across knowledge bases
  tcmkb reprocess [document-id...]          Reprocess documents (all unfinished when no id)
  tcmkb delete [flags] <document-id>        Delete a document
  tcmkb status [flags]                      Show storage and index status
  tcmkb watch add -kb <id> <dir>            Watch a directory for a knowledge base
  tcmkb watch remove|list [dir]             Manage watched directories
  tcmkb version                             Show version
  tcmkb help                                Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/tcmkb/config.yaml, or ./config.yaml if present)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Search Flags:
  --server string     Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --top-k int         Number of results (default: knowledge base top_k)
  --type string       embedding, keywords or blend (default: knowledge base search_type)
  --threshold float   Similarity threshold (default: knowledge base similarity_threshold)

Examples:
  tcmkb server
  tcmkb kb create -name 伤寒论
  tcmkb ingest -kb 3f1c... ./classics
  tcmkb search -kb 3f1c... 太阳病 发热 恶寒
  tcmkb search -kb 3f1c... -type keywords --output json 桂枝汤
  tcmkb retrieve -kb 3f1c...,9a7e... 咳嗽痰多
  tcmkb status --server ""`)
}
