// Package main is the Osusume CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/cli"
	"github.com/hyperjump/osusume/internal/config"
	"github.com/hyperjump/osusume/internal/extract"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/recommend"
	"github.com/hyperjump/osusume/internal/server"
	"github.com/hyperjump/osusume/internal/storage"
	"github.com/hyperjump/osusume/internal/watcher"
	"github.com/hyperjump/osusume/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/osusume/config.yaml"

// loadConfig loads config from path and applies OSUSUME_* overrides. When path is the
// default, config.yaml in the current directory wins if present, and a missing default file
// yields the built-in defaults. Returns the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			var cfg config.Config
			config.ApplyDefaults(&cfg)
			if err := config.ApplyEnv(&cfg); err != nil {
				return nil, "", err
			}
			return &cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "extract":
		runExtract()
	case "classify":
		runClassify()
	case "import":
		runImport()
	case "precompute":
		runPrecompute()
	case "similar":
		runSimilar()
	case "recommend":
		runRecommend()
	case "interact":
		runInteract()
	case "search":
		runSearch()
	case "categories":
		runCategories()
	case "stats":
		runStats()
	case "version", "--version", "-v":
		fmt.Printf("osusume version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// exitf prints to stderr and exits with status 1.
func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config, logger, and components for a direct (serverless) command.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		exitf("%v", err)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (tag extraction, classification, ingest)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	opts := []server.Option{server.WithIngester(components.Ingester)}
	if components.Reloader != nil {
		opts = append(opts, server.WithCategoryReloader(components.Reloader))
		if cfg.Watch.Enabled {
			w, err := components.Reloader.Watch(watchCtx)
			if err != nil {
				logger.Fatal("Failed to start watcher", zap.Error(err))
			}
			defer w.Stop()
			logger.Info("watching categories file", zap.String("path", w.Path()))
		}
	}

	srv := server.NewServer(components.Engine, &cfg.Server, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	components.SaveVectorIndex()
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// reorderArgs moves any flags (and their values) that appear after positional arguments
// to the front so that flag.Parse sees them. "osusume search 跑步鞋 -limit 5" would
// otherwise leave -limit unparsed.
func reorderArgs(args []string) []string {
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

// joinArgs joins positional args with spaces so multi-word text works with or without
// shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseIDs parses positional product or user ids.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// textInput returns the contents of file when set, else the joined positional args.
func textInput(file string, args []string) (string, error) {
	if file == "" {
		return joinArgs(args), nil
	}
	return extract.NewExtractor().Extract(file)
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("file", "", "extract tags from a document (.txt, .md, .csv, .pdf, .docx, .xlsx)")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	format := parseFormat(*output)

	text, err := textInput(*file, fs.Args())
	if err != nil {
		exitf("Extraction failed: %v", err)
	}
	if text == "" {
		fmt.Println("Usage: osusume extract [flags] <text> | --file <path>")
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	tagging, err := initializeTagging(cfg, zap.NewNop(), false)
	if err != nil {
		exitf("Failed to initialize: %v", err)
	}
	defer tagging.Close()

	tags := tagging.Segmenter.ExtractTags(text)
	if tags == nil {
		tags = []string{}
	}
	if err := cli.WriteTags(os.Stdout, utils.Truncate(text, 200), tags, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("file", "", "classify the text of a document")
	categoriesFile := fs.String("categories", "", "categories file (default: watch.categories_file, else the stored table)")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	format := parseFormat(*output)

	text, err := textInput(*file, fs.Args())
	if err != nil {
		exitf("Extraction failed: %v", err)
	}
	if text == "" {
		fmt.Println("Usage: osusume classify [flags] <text> | --file <path>")
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	cats, err := classifyCategories(cfg, *categoriesFile)
	if err != nil {
		exitf("Failed to load categories: %v", err)
	}
	tagging, err := initializeTagging(cfg, zap.NewNop(), false)
	if err != nil {
		exitf("Failed to initialize: %v", err)
	}
	defer tagging.Close()

	tags := tagging.Segmenter.ExtractTags(text)
	if tags == nil {
		tags = []string{}
	}
	c := tagging.Classifier.Classify(tags, cats)
	if err := cli.WriteClassification(os.Stdout, tags, c, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

// classifyCategories reads categories from file, the configured categories file, or the
// database, in that order.
func classifyCategories(cfg *config.Config, file string) ([]models.Category, error) {
	if file == "" {
		file = cfg.Watch.CategoriesFile
	}
	if file != "" {
		return config.LoadCategories(file)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.ListCategories(context.Background())
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "log every imported product")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	format := parseFormat(*output)

	if fs.NArg() < 1 {
		fmt.Println("Usage: osusume import [flags] <products.txt|products.xlsx>...")
		os.Exit(1)
	}
	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	for _, path := range fs.Args() {
		report, err := components.Ingester.ImportFile(ctx, path)
		if err != nil {
			exitf("Import failed: %v", err)
		}
		if err := cli.WriteImport(os.Stdout, path, report, format); err != nil {
			exitf("Output failed: %v", err)
		}
	}
	components.SaveVectorIndex()
}

func runPrecompute() {
	fs := flag.NewFlagSet("precompute", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	target := fs.String("target", "all", "what to compute: tags, products, or all")
	force := fs.Bool("force", false, "recompute product vectors that already exist")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	switch *target {
	case "tags", "products", "all":
	default:
		exitf("Unknown target %q; use tags, products, or all", *target)
	}
	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if *target != "products" {
		report, err := components.Engine.PrecomputeTagVectors(ctx)
		if err != nil {
			exitf("Precompute tags failed: %v", err)
		}
		_ = cli.WritePrecompute(os.Stdout, "tags", report, format)
	}
	if *target != "tags" {
		report, err := components.Engine.PrecomputeProductVectors(ctx, *force)
		if err != nil {
			exitf("Precompute products failed: %v", err)
		}
		_ = cli.WritePrecompute(os.Stdout, "products", report, format)
	}
	components.SaveVectorIndex()
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = direct storage access)")
	limit := fs.Int("limit", 0, "number of results (0 = configured default)")
	threshold := fs.Float64("threshold", 0, "minimum similarity")
	includeSelf := fs.Bool("include-self", false, "keep the queried product in its own results")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	format := parseFormat(*output)

	ids, err := parseIDs(fs.Args())
	if err != nil || len(ids) == 0 {
		fmt.Println("Usage: osusume similar [flags] <product-id> [product-id...]")
		os.Exit(1)
	}
	opts := recommend.SimilarOptions{Limit: *limit, Threshold: *threshold, IncludeSelf: *includeSelf}

	if *serverURL != "" {
		api := newAPIClient(*serverURL)
		if len(ids) == 1 {
			var res models.Result
			q := url.Values{}
			q.Set("limit", strconv.Itoa(opts.Limit))
			q.Set("threshold", strconv.FormatFloat(opts.Threshold, 'f', -1, 64))
			q.Set("exclude_self", strconv.FormatBool(!opts.IncludeSelf))
			if err := api.get(fmt.Sprintf("/products/%d/similar?%s", ids[0], q.Encode()), &res); err != nil {
				exitf("Similar failed: %v", err)
			}
			_ = cli.WriteResult(os.Stdout, &res, format)
			return
		}
		var out models.BatchResult
		exclude := !opts.IncludeSelf
		body := map[string]interface{}{"product_ids": ids, "limit": opts.Limit, "threshold": opts.Threshold, "exclude_self": exclude}
		if err := api.post("/products/similar/batch", body, &out); err != nil {
			exitf("Similar failed: %v", err)
		}
		_ = cli.WriteBatch(os.Stdout, ids, &out, format)
		return
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if len(ids) == 1 {
		res, err := components.Engine.SimilarProducts(ctx, ids[0], opts)
		if err != nil {
			exitf("Similar failed: %v", err)
		}
		_ = cli.WriteResult(os.Stdout, res, format)
		return
	}
	_ = cli.WriteBatch(os.Stdout, ids, components.Engine.BatchSimilarProducts(ctx, ids, opts), format)
}

func runRecommend() {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = direct storage access)")
	limit := fs.Int("limit", 0, "number of results (0 = configured default)")
	update := fs.Bool("update", false, "refresh the user's profile vector first")
	category := fs.Bool("category", false, "treat the id as a category and recommend within it")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	format := parseFormat(*output)

	ids, err := parseIDs(fs.Args())
	if err != nil || len(ids) != 1 {
		fmt.Println("Usage: osusume recommend [flags] <user-id>")
		fmt.Println("       osusume recommend --category [flags] <category-id>")
		os.Exit(1)
	}
	id := ids[0]

	if *serverURL != "" {
		api := newAPIClient(*serverURL)
		path := fmt.Sprintf("/users/%d/recommendations?limit=%d", id, *limit)
		if *category {
			path = fmt.Sprintf("/categories/%d/recommendations?limit=%d", id, *limit)
		} else if *update {
			var u models.ProfileUpdate
			if err := api.post(fmt.Sprintf("/users/%d/profile", id), nil, &u); err != nil {
				exitf("Profile update failed: %v", err)
			}
			if format == cli.OutputText {
				_ = cli.WriteProfile(os.Stdout, &u, format)
			}
		}
		var res models.Result
		if err := api.get(path, &res); err != nil {
			exitf("Recommend failed: %v", err)
		}
		_ = cli.WriteResult(os.Stdout, &res, format)
		return
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	var res *models.Result
	if *category {
		res, err = components.Engine.CategoryRecommendations(ctx, id, *limit)
	} else {
		if *update {
			u, err := components.Engine.UpdateUserProfile(ctx, id)
			if err != nil {
				exitf("Profile update failed: %v", err)
			}
			if format == cli.OutputText {
				_ = cli.WriteProfile(os.Stdout, u, format)
			}
		}
		res, err = components.Engine.UserRecommendations(ctx, id, *limit)
	}
	if err != nil {
		exitf("Recommend failed: %v", err)
	}
	_ = cli.WriteResult(os.Stdout, res, format)
}

func runInteract() {
	fs := flag.NewFlagSet("interact", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	userID := fs.Int64("user", 0, "user id")
	productID := fs.Int64("product", 0, "product id")
	kind := fs.String("kind", string(models.InteractionView), "view, click, favorite, purchase, or dislike")
	score := fs.Float64("score", -1, "interaction score (default 1.0)")
	session := fs.String("session", "", "session id (default: new uuid)")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	if *userID == 0 || *productID == 0 {
		fmt.Println("Usage: osusume interact --user <id> --product <id> [--kind view] [--score 1.0]")
		os.Exit(1)
	}
	in := models.InteractionInput{
		UserID:    *userID,
		ProductID: *productID,
		Kind:      models.InteractionKind(*kind),
		SessionID: *session,
	}
	if *score >= 0 {
		in.Score = score
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	rec, err := components.Engine.RecordInteraction(context.Background(), in)
	if err != nil {
		exitf("Record interaction failed: %v", err)
	}
	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, rec)
		return
	}
	fmt.Printf("Recorded %s of product %d by user %d (interaction %d)\n", rec.Kind, rec.ProductID, rec.UserID, rec.ID)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = direct storage access)")
	limit := fs.Int("limit", 0, "number of results (0 = configured default)")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))
	format := parseFormat(*output)

	query := joinArgs(fs.Args())
	if query == "" {
		fmt.Println("Usage: osusume search [flags] <query>")
		os.Exit(1)
	}

	if *serverURL != "" {
		var res models.Result
		q := url.Values{}
		q.Set("q", query)
		q.Set("limit", strconv.Itoa(*limit))
		if err := newAPIClient(*serverURL).get("/search?"+q.Encode(), &res); err != nil {
			exitf("Search failed: %v", err)
		}
		_ = cli.WriteResult(os.Stdout, &res, format)
		return
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	res, err := components.Engine.Search(context.Background(), query, *limit)
	if err != nil {
		exitf("Search failed: %v", err)
	}
	_ = cli.WriteResult(os.Stdout, res, format)
}

func runCategories() {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("load", "", "replace the stored category table with this YAML or JSON file")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if *file != "" {
		r := watcher.NewCategoryReloader(*file, components.Engine, components.Storage, logger)
		n, err := r.Reload(context.Background())
		if err != nil {
			exitf("Load categories failed: %v", err)
		}
		if format == cli.OutputText {
			fmt.Printf("Loaded %d categories from %s\n", n, *file)
		}
	}
	if err := cli.WriteCategories(os.Stdout, components.Engine.Categories(), format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = direct storage access)")
	output := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	if *serverURL != "" {
		var stats models.Stats
		if err := newAPIClient(*serverURL).get("/stats", &stats); err != nil {
			exitf("Stats failed: %v", err)
		}
		_ = cli.WriteStats(os.Stdout, &stats, format)
		return
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	stats, err := components.Engine.Stats(context.Background())
	if err != nil {
		exitf("Stats failed: %v", err)
	}
	_ = cli.WriteStats(os.Stdout, stats, format)
}

func printUsage() {
	fmt.Println(`osusume - Product tagging, classification, and recommendation engine

Usage:
  osusume server [flags]                  Start the HTTP server
  osusume extract [flags] <text>          Extract tags from text or a document (--file)
  osusume classify [flags] <text>         Classify text or a document into a category
  osusume import [flags] <file>...        Import products from raw lines or an .xlsx sheet
  osusume precompute [flags]              Compute missing tag and product vectors
  osusume similar [flags] <id>...         Products similar to one or more products
  osusume recommend [flags] <user-id>     Recommendations for a user (--category for a category)
  osusume interact [flags]                Record a user interaction
  osusume search [flags] <query>          Semantic product search
  osusume categories [flags]              List or load the category table
  osusume stats [flags]                   Corpus, index, and cache statistics
  osusume version                         Show version
  osusume help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/osusume/config.yaml,
                     or ./config.yaml when present)
  --format string    Output format: text or json (default: text)
  --server string    Query a running server instead of opening storage
                     (similar, recommend, search, stats)

Environment:
  OSUSUME_DATABASE_PATH, OSUSUME_PGVECTOR_DSN, OSUSUME_PORT, OSUSUME_DEBUG
  Variables may also be set in a .env file in the current directory.

Examples:
  osusume server --debug
  osusume extract 透气运动鞋 男款跑步鞋
  osusume extract --file brochure.pdf --format json
  osusume classify 华为智能手机 5G
  osusume import products.txt
  osusume precompute --target products --force
  osusume similar --limit 5 1001
  osusume similar 1001 1002 1003
  osusume interact --user 7 --product 1001 --kind purchase
  osusume recommend --update 7
  osusume search 跑步鞋 --limit 20
  osusume categories --load categories.yaml
  osusume stats --server http://localhost:8080`)
}
