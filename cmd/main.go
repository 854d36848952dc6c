package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RishiKendai/textpair/internal/alignment"
	"github.com/RishiKendai/textpair/internal/api"
	"github.com/RishiKendai/textpair/internal/compare"
	"github.com/RishiKendai/textpair/internal/config"
	"github.com/RishiKendai/textpair/internal/configs/env"
	"github.com/RishiKendai/textpair/internal/corpus"
	"github.com/RishiKendai/textpair/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/textpair/internal/infra/redis"
	"github.com/RishiKendai/textpair/internal/logger"
	"github.com/RishiKendai/textpair/internal/metrics"
	"github.com/RishiKendai/textpair/internal/models"
	"github.com/RishiKendai/textpair/internal/ngram"
	"github.com/RishiKendai/textpair/internal/output"
	"github.com/RishiKendai/textpair/internal/repository"
	"github.com/RishiKendai/textpair/internal/status"
	"github.com/RishiKendai/textpair/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var version = "dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitConfig
	}
	switch args[0] {
	case "index":
		return runIndex(args[1:], stdout, stderr)
	case "compare":
		return runCompare(args[1:], stdout, stderr)
	case "ingest":
		return runIngest(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "textpair version %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitConfig
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: textpair <command> [flags]

Commands:
  index    build an ngram index file from a JSONL corpus
  compare  align a source index against a target index
  ingest   store a JSONL corpus in MongoDB for server runs
  serve    run the HTTP API and the run request consumer
  version  print the version
`)
}

// loadConfig reads env (and .env), then the YAML file named by path or
// CONFIG_FILE, and sets up logging
func loadConfig(path string) (*config.Config, error) {
	if err := env.LoadEnv(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, using system environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = env.GetEnv("CONFIG_FILE", "")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// noteBanality warns when banality suppression is switched off
func noteBanality(cfg *config.Config) {
	if cfg.BanalityCeiling == 0 {
		log.Warn().Msg("BANALITY_CEILING is 0, alignments made of common phrasing will not be suppressed")
	}
}

// parse parses args and reports the names of the flags that were set
func parse(fs *flag.FlagSet, args []string) (map[string]bool, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set, nil
}

func runIndex(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	input := fs.String("input", "", "JSONL corpus file (.jsonl or .jsonl.zst)")
	outputPath := fs.String("output", "", "index file to write")
	n := fs.Int("n", 0, "ngram length (default NGRAM_LENGTH)")
	set, err := parse(fs, args)
	if err != nil {
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitConfig
	}
	if set["n"] {
		cfg.NgramLength = *n
	}
	if *input == "" || *outputPath == "" {
		fmt.Fprintln(stderr, "index requires -input and -output")
		return exitConfig
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitConfig
	}

	started := time.Now()
	docs, lineErrs, err := corpus.LoadFile(*input)
	if err != nil {
		log.Error().Err(err).Str("input", *input).Msg("Failed to load corpus")
		return exitFailed
	}
	for _, de := range lineErrs {
		log.Warn().Err(de.Err).Int("line", de.Line).Msg("Skipping malformed corpus line")
	}

	idx, docErrs, err := ngram.Build(docs, cfg.NgramLength)
	if err != nil {
		log.Error().Err(err).Str("input", *input).Msg("Failed to build index")
		return exitFailed
	}
	for _, de := range docErrs {
		log.Warn().Err(de.Err).Str("docId", de.DocID).Int("line", de.Line).Msg("Skipping malformed document")
	}
	if err := ngram.SaveFile(*outputPath, idx); err != nil {
		log.Error().Err(err).Str("output", *outputPath).Msg("Failed to write index")
		return exitFailed
	}

	log.Info().
		Str("output", *outputPath).
		Int("documents", idx.Len()).
		Int("distinctNgrams", idx.DistinctKeys()).
		Dur("elapsed", time.Since(started)).
		Msg("Index written")
	fmt.Fprintf(stdout, "indexed %d documents (%d skipped), %d ngrams, %d distinct\n",
		idx.Len(), len(lineErrs)+len(docErrs), idx.TotalNgrams(), idx.DistinctKeys())
	return exitOK
}

func runCompare(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	source := fs.String("source", "", "source index file (default SOURCE_INDEX_PATH)")
	target := fs.String("target", "", "target index file; omitted compares the source with itself")
	outputPath := fs.String("output", "", "alignments file; omitted writes to stdout")
	workers := fs.Int("workers", 0, "worker count, 0 derives it from the CPU count")
	format := fs.String("format", "", "output format: tsv or jsonl")
	set, err := parse(fs, args)
	if err != nil {
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitConfig
	}
	if set["source"] {
		cfg.SourceIndexPath = *source
	}
	if set["target"] {
		cfg.TargetIndexPath = *target
	}
	if set["output"] {
		cfg.OutputPath = *outputPath
	}
	if set["workers"] {
		cfg.Workers = *workers
	}
	if set["format"] {
		cfg.OutputFormat = *format
	}
	if cfg.SourceIndexPath == "" {
		fmt.Fprintln(stderr, "compare requires -source")
		return exitConfig
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitConfig
	}
	outFormat, _ := cfg.Format()
	noteBanality(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sourceIdx, err := ngram.LoadFile(cfg.SourceIndexPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load source index")
		return exitFailed
	}
	targetIdx := sourceIdx
	if cfg.TargetIndexPath != "" && cfg.TargetIndexPath != cfg.SourceIndexPath {
		if targetIdx, err = ngram.LoadFile(cfg.TargetIndexPath); err != nil {
			log.Error().Err(err).Msg("Failed to load target index")
			return exitFailed
		}
	}

	result, err := alignment.Run(ctx, sourceIdx, targetIdx, cfg.Params())
	if err != nil {
		log.Error().Err(err).Msg("Comparison failed")
		if errors.Is(err, alignment.ErrInvalidParams) {
			return exitConfig
		}
		return exitFailed
	}

	if cfg.OutputPath == "" || cfg.OutputPath == "-" {
		err = output.Write(stdout, result.Alignments, outFormat)
	} else {
		err = output.WriteFile(cfg.OutputPath, result.Alignments, outFormat)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to write alignments")
		return exitFailed
	}

	printSummary(stderr, result.Summary)
	if result.Summary.Canceled {
		return exitFailed
	}
	return exitOK
}

func printSummary(w io.Writer, s models.RunSummary) {
	fmt.Fprintf(w, "documents: %d total, %d processed, %d failed, %d skipped\n",
		s.DocumentsTotal, s.DocumentsProcessed, s.DocumentsFailed, s.DocumentsSkipped)
	fmt.Fprintf(w, "hits: %d\n", s.Hits)
	fmt.Fprintf(w, "alignments: %d produced, %d rejected (%d too few ngrams, %d too short, %d banal)\n",
		s.AlignmentsProduced, s.AlignmentsRejected, s.RejectedTooFew, s.RejectedTooShort, s.RejectedBanal)
	fmt.Fprintf(w, "duration: %s\n", s.Duration.Round(time.Millisecond))
	if s.Canceled {
		fmt.Fprintln(w, "run was canceled before all documents were compared")
	}
}

func runIngest(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	input := fs.String("input", "", "JSONL corpus file (.jsonl or .jsonl.zst)")
	name := fs.String("corpus", "", "corpus name the documents are stored under")
	if _, err := parse(fs, args); err != nil {
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitConfig
	}
	if *input == "" || *name == "" {
		fmt.Fprintln(stderr, "ingest requires -input and -corpus")
		return exitConfig
	}
	if cfg.MongoURI == "" || cfg.MongoDBName == "" {
		fmt.Fprintln(stderr, "Invalid configuration: MONGO_URI and MONGO_DB_NAME are required")
		return exitConfig
	}

	docs, lineErrs, err := corpus.LoadFile(*input)
	if err != nil {
		log.Error().Err(err).Str("input", *input).Msg("Failed to load corpus")
		return exitFailed
	}
	for _, de := range lineErrs {
		log.Warn().Err(de.Err).Int("line", de.Line).Msg("Skipping malformed corpus line")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create MongoDB client")
		return exitFailed
	}
	defer mongoClient.Close(context.Background())

	mongoRepo := repository.NewMongoRepository(mongoClient)
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure MongoDB indexes")
	}
	docsRepo := repository.NewDocumentsRepository(mongoRepo)
	existing, err := docsRepo.CountDocumentsByCorpus(ctx, *name)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count corpus documents")
		return exitFailed
	}
	if existing > 0 {
		fmt.Fprintf(stderr, "corpus %q already holds %d documents\n", *name, existing)
		return exitFailed
	}
	if err := docsRepo.InsertDocuments(ctx, *name, docs); err != nil {
		log.Error().Err(err).Msg("Failed to store corpus")
		return exitFailed
	}

	fmt.Fprintf(stdout, "stored %d documents in corpus %s (%d lines skipped)\n", len(docs), *name, len(lineErrs))
	return exitOK
}

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	if _, err := parse(fs, args); err != nil {
		return exitConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitConfig
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitConfig
	}
	outFormat, _ := cfg.Format()

	log.Info().Str("version", version).Msg("Starting textpair server")
	metrics.InitPrometheus()
	metricsServer := api.StartMetricsServer(metrics.Handler(), cfg.MetricsPort)

	noteBanality(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect MongoDB
	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create MongoDB client")
		return exitFailed
	}
	defer mongoClient.Close(context.Background())

	// Connect Redis
	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Redis client")
		return exitFailed
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient)
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure MongoDB indexes")
	}
	runsRepo := repository.NewRunsRepository(mongoRepo)
	statusStore := status.NewStore(redisClient.Client)

	var docs compare.DocumentSource = repository.NewDocumentsRepository(mongoRepo)
	if cfg.CorpusDir != "" {
		docs = corpus.NewFileSource(cfg.CorpusDir)
		log.Info().Str("dir", cfg.CorpusDir).Msg("Reading corpora from files")
	}

	svc := compare.NewService(docs, runsRepo, statusStore, compare.Options{
		NgramLength: cfg.NgramLength,
		Params:      cfg.Params(),
		Format:      outFormat,
		OutputDir:   cfg.OutputDir,
	})

	// Initialize Redis stream consumer
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	retryHandler := stream.NewRetryHandler(redisClient.Client, cfg.RedisDeadLetterKey)
	consumer := stream.NewConsumer(redisClient.Client, stream.ConsumerConfig{
		StreamKey:  cfg.RedisStreamKey,
		Group:      cfg.RedisConsumerGroup,
		Name:       consumerName,
		Retention:  cfg.StreamRetention,
		RunTimeout: cfg.RunTimeout,
	}, svc, retryHandler)
	log.Info().Str("consumer_name", consumerName).Msg("Redis stream consumer initialized")

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Redis consumer error")
		}
	}()

	handler := api.NewHandler(ctx, svc, runsRepo, statusStore, cfg.MaxConcurrentRuns, cfg.RunTimeout)
	router := api.SetupRoutes(api.RouteConfig{
		JWTSecret:    cfg.JWTSecret,
		JWTIssuer:    cfg.JWTIssuer,
		RateLimitRPS: cfg.RateLimitRPS,
	}, handler)
	srv := api.StartServer(router, cfg.ServerPort)

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")
	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down Gin server")
	}

	// cancels in-flight runs; they record themselves as canceled
	cancel()
	handler.Wait()
	<-consumerDone

	metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer metricsCancel()
	if err := metricsServer.Shutdown(metricsCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
	return exitOK
}
