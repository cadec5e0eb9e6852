// Package main is the utsushi CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/cli"
	"github.com/hyperjump/utsushi/internal/config"
	"github.com/hyperjump/utsushi/internal/indexer"
	"github.com/hyperjump/utsushi/internal/models"
	"github.com/hyperjump/utsushi/internal/server"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/utsushi/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config yields the built-in defaults.
// Returns the config and the path that was actually loaded.
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
		cfg, err := config.LoadOrDefault(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
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
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "folders":
		runFolders()
	case "refresh":
		runRefresh()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("utsushi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config and builds the logger, exiting on failure. One-shot commands get
// the quiet CLI logger; the server gets the regular one.
func setup(configPath string, debug, serverMode bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	newLogger := utils.NewCLILogger
	if serverMode {
		newLogger = utils.NewLogger
	}
	logger, err := newLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

// mustComponents initializes the local components or exits with a hint about the
// server holding the database lock.
func mustComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Components {
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		fmt.Fprintln(os.Stderr, "If the server is running, stop it or use its HTTP API.")
		os.Exit(1)
	}
	return components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolved := setup(*configPath, *debug, true)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug || *debug))

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Engine,
		components.Refresh,
		components.Tasks,
		components.Storage,
		components.Vectors,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: utsushi search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  utsushi search dog playing in the snow
  utsushi search --image ./holiday/beach.jpg
  utsushi search --name invoice
  utsushi search --page 2 --page-size 10 --output compact sunset
`)
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

// searchMode is the kind of search the flags ask for.
type searchMode string

const (
	modeText  searchMode = "text"
	modeImage searchMode = "image"
	modeName  searchMode = "name"
)

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL; falls back to direct storage when unreachable (empty = always direct)")
	imagePath := fs.String("image", "", "search by example image instead of text")
	byName := fs.Bool("name", false, "search file names instead of content")
	page := fs.Int("page", 1, "result page (1-based)")
	pageSize := fs.Int("page-size", 0, "results per page (default from config)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mode := modeText
	queryStr := buildSearchQuery(fs.Args())
	switch {
	case *imagePath != "":
		mode = modeImage
		abs, err := filepath.Abs(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid image path: %v\n", err)
			os.Exit(1)
		}
		*imagePath = abs
	case *byName:
		mode = modeName
	}
	if mode != modeImage && queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	query := &models.SearchQuery{Text: queryStr, ImagePath: *imagePath, Page: *page, PageSize: *pageSize}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(newAPIClient(*serverURL), mode, query)
		if err != nil && !errors.Is(err, errServerUnavailable) {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}
	if response == nil {
		cfg, logger, _ := setup(*configPath, false, false)
		defer logger.Sync()
		ctx := context.Background()
		components := mustComponents(ctx, cfg, logger)
		defer components.Close()
		response, err = searchDirect(ctx, components, mode, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(c *apiClient, mode searchMode, q *models.SearchQuery) (*models.SearchResponse, error) {
	switch mode {
	case modeImage:
		return c.imageSearch(q)
	case modeName:
		return c.nameSearch(q.Text, q.PageSize)
	default:
		return c.textSearch(q)
	}
}

func searchDirect(ctx context.Context, c *Components, mode searchMode, q *models.SearchQuery) (*models.SearchResponse, error) {
	switch mode {
	case modeImage:
		return c.Engine.ImageSearch(ctx, q)
	case modeName:
		return c.Engine.NameSearch(ctx, q.Text, q.PageSize)
	default:
		return c.Engine.TextSearch(ctx, q)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL; falls back to direct storage when unreachable (empty = always direct)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var report *server.StatusReport
	var err error
	if *serverURL != "" {
		report, err = newAPIClient(*serverURL).status()
		if err != nil && !errors.Is(err, errServerUnavailable) {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if report == nil {
		cfg, logger, _ := setup(*configPath, false, false)
		defer logger.Sync()
		ctx := context.Background()
		components := mustComponents(ctx, cfg, logger)
		defer components.Close()
		report, err = server.BuildStatus(ctx, components.Storage, components.Vectors, nil, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		printStatus(report)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printStatus(report *server.StatusReport) {
	fmt.Printf("media_files:        %d   # indexed images and videos\n", report.MediaFiles)
	fmt.Printf("video_frames:       %d   # sampled video frames\n", report.VideoFrames)
	fmt.Printf("folders:            %d   # indexed folders\n", report.Folders)
	fmt.Printf("vector_store_size:  %d   # vectors in the vector store\n", report.VectorStoreSize)
	if du := report.DiskUsage; du != nil {
		fmt.Printf("disk_usage_bytes:   %d   # database %d, vectors %d, name index %d, thumbnails %d\n",
			du.Total, du.Database, du.Vectors, du.NameIndex, du.Thumbnails)
	}
	if report.Task != nil && report.Task.Kind != "" {
		fmt.Printf("task:               %s %s (%d/%d)\n", report.Task.Kind, report.Task.State, report.Task.Processed, report.Task.Total)
	}
	if report.Config != nil {
		fmt.Println()
		fmt.Println("# configuration")
		fmt.Printf("vector_store_type:  %s\n", report.Config.VectorStoreType)
		if report.Config.EmbeddingProvider != "" {
			fmt.Printf("embedding:          %s (%d dims)\n", report.Config.EmbeddingProvider, report.Config.EmbeddingDimensions)
		}
		if report.Config.FrameSampleRate > 0 {
			fmt.Printf("frame_sample_rate:  %g\n", report.Config.FrameSampleRate)
		}
		if report.Config.DatabasePath != "" {
			fmt.Printf("database_path:      %s\n", report.Config.DatabasePath)
		}
		if report.Config.CacheDir != "" {
			fmt.Printf("cache_dir:          %s\n", report.Config.CacheDir)
		}
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: utsushi index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Printf("Invalid path: %v\n", err)
		os.Exit(1)
	}
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}

	cfg, logger, _ := setup(*configPath, *debug, false)
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	components := mustComponents(ctx, cfg, logger)
	defer components.Close()

	if info.IsDir() {
		printer := cli.NewProgressPrinter(os.Stdout)
		name := filepath.Base(path)
		report, err := components.Indexer.IndexDirectory(ctx, path, func(done, total int) {
			printer.Progress(name, done, total)
		})
		if errors.Is(err, context.Canceled) {
			fmt.Printf("\nIndexing canceled after %d file(s)\n", len(report.Indexed))
			return
		}
		if err != nil {
			fmt.Printf("Indexing directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d of %d file(s) from %s (%d failed)\n", len(report.Indexed), report.Total, path, report.Failed)
		return
	}

	res := components.Indexer.IndexFile(ctx, path)
	switch {
	case res.Skipped:
		fmt.Printf("Already indexed: %s\n", path)
	case res.Indexed:
		fmt.Printf("Indexed: %s\n", path)
		if res.Frames > 0 {
			fmt.Printf("Frames: %d\n", res.Frames)
		}
	default:
		fmt.Printf("Indexing failed (%s): %v\n", res.Reason, res.Err)
		if res.Reason != indexer.ReasonUnsupported {
			os.Exit(1)
		}
	}
}

func runFolders() {
	if len(os.Args) < 3 {
		printFoldersUsage()
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("folders", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL for list; falls back to direct storage when unreachable")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: utsushi folders add <path>")
			os.Exit(1)
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			fmt.Printf("Invalid path: %v\n", err)
			os.Exit(1)
		}
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			fmt.Printf("Not a directory: %s\n", path)
			os.Exit(1)
		}
		cfg, logger, _ := setup(*configPath, false, false)
		defer logger.Sync()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		components := mustComponents(ctx, cfg, logger)
		defer components.Close()

		report, err := components.Refresh.AddFolder(ctx, path, cli.NewProgressPrinter(os.Stdout))
		if errors.Is(err, context.Canceled) {
			fmt.Printf("\nCanceled after %d file(s); run `utsushi refresh` to finish\n", len(report.Indexed))
			return
		}
		if err != nil {
			fmt.Printf("Add folder failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: utsushi folders remove <path>")
			os.Exit(1)
		}
		cfg, logger, _ := setup(*configPath, false, false)
		defer logger.Sync()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		components := mustComponents(ctx, cfg, logger)
		defer components.Close()

		n, err := components.Refresh.RemoveFolder(ctx, fs.Arg(0))
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Printf("Not an indexed folder: %s\n", fs.Arg(0))
			os.Exit(1)
		}
		if err != nil {
			fmt.Printf("Remove folder failed after %d file(s): %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Removed: %s (%d files)\n", fs.Arg(0), n)
	case "list":
		var folders []*models.IndexedFolder
		var err error
		if *serverURL != "" {
			folders, err = newAPIClient(*serverURL).folders()
			if err != nil && !errors.Is(err, errServerUnavailable) {
				fmt.Printf("List failed: %v\n", err)
				os.Exit(1)
			}
		}
		if err != nil || *serverURL == "" {
			cfg, logger, _ := setup(*configPath, false, false)
			defer logger.Sync()
			ctx := context.Background()
			components := mustComponents(ctx, cfg, logger)
			defer components.Close()
			folders, err = components.Storage.ListFolders(ctx)
			if err != nil {
				fmt.Printf("List failed: %v\n", err)
				os.Exit(1)
			}
		}
		for _, f := range folders {
			fmt.Println(f.Path)
		}
	default:
		fmt.Printf("Unknown folders subcommand: %s\n", sub)
		printFoldersUsage()
		os.Exit(1)
	}
}

func printFoldersUsage() {
	fmt.Println("Usage: utsushi folders <add|remove|list> [path]")
	fmt.Println("  utsushi folders add <path>     Record a folder and index everything in it")
	fmt.Println("  utsushi folders remove <path>  Forget a folder and drop its files from the index")
	fmt.Println("  utsushi folders list           List indexed folders")
}

func runRefresh() {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(*configPath, *debug, false)
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	components := mustComponents(ctx, cfg, logger)
	defer components.Close()

	printer := cli.NewProgressPrinter(os.Stdout)
	var err error
	if fs.NArg() > 0 {
		folders := make([]string, 0, fs.NArg())
		for _, f := range fs.Args() {
			abs, absErr := filepath.Abs(f)
			if absErr != nil {
				fmt.Printf("Invalid path %s: %v\n", f, absErr)
				os.Exit(1)
			}
			folders = append(folders, abs)
		}
		_, err = components.Refresh.Refresh(ctx, folders, printer)
	} else {
		_, err = components.Refresh.RefreshAll(ctx, printer)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nRefresh canceled; files already processed are kept")
		return
	}
	if err != nil {
		fmt.Printf("Refresh failed: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`utsushi - Local semantic search for images and videos

Usage:
  utsushi server [flags]              Start the HTTP server
  utsushi search [flags] <query>      Search by text, example image or file name
  utsushi index [flags] <path>        Index a file or directory
  utsushi folders <cmd> [path]        Manage indexed folders (add, remove, list)
  utsushi refresh [flags] [folders]   Sync indexed folders with disk (Ctrl-C cancels)
  utsushi status [flags]              Show library and index status
  utsushi version                     Show version
  utsushi help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/utsushi/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string     Config file path (for direct storage mode)
  --server string     Server URL (default: http://localhost:8080). Falls back to direct storage when unreachable.
  --image string      Search by example image
  --name              Search file names
  --page int          Result page (default: 1)
  --page-size int     Results per page (default from config)
  --output string     Output format: text, compact or json (default: text)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  utsushi server
  utsushi folders add ~/Pictures
  utsushi search "dog on a beach"
  utsushi search --image ~/Pictures/cat.jpg --output json
  utsushi refresh
  utsushi status --output json`)
}
