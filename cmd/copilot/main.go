package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Avatar2001/retail-analytics-copilot/internal/batch"
	"github.com/Avatar2001/retail-analytics-copilot/internal/cache"
	"github.com/Avatar2001/retail-analytics-copilot/internal/config"
	"github.com/Avatar2001/retail-analytics-copilot/internal/dataset"
	"github.com/Avatar2001/retail-analytics-copilot/internal/llm"
	"github.com/Avatar2001/retail-analytics-copilot/internal/retrieval"
	"github.com/Avatar2001/retail-analytics-copilot/internal/tracing"
	"github.com/Avatar2001/retail-analytics-copilot/internal/workflow"
)

// retrieverAdapter bridges the retrieval index to the workflow's collaborator
// interface.
type retrieverAdapter struct {
	idx *retrieval.Retriever
}

func (a retrieverAdapter) Retrieve(ctx context.Context, query string, topK int) ([]workflow.Chunk, error) {
	chunks, err := a.idx.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]workflow.Chunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, workflow.Chunk{
			ChunkID: c.ChunkID,
			Content: c.Content,
			Score:   c.Score,
		})
	}
	return out, nil
}

// executorAdapter bridges the dataset store to the workflow's query executor
// interface.
type executorAdapter struct {
	store *dataset.Store
}

func (a executorAdapter) Execute(ctx context.Context, query string) (workflow.QueryResult, error) {
	res, err := a.store.Execute(ctx, query)
	if err != nil {
		return workflow.QueryResult{}, err
	}
	return workflow.QueryResult{
		Rows:    res.Rows,
		Columns: res.Columns,
		Error:   res.Error,
	}, nil
}

func main() {
	var (
		batchPath  = flag.String("batch", "", "path to NDJSON file with questions (required)")
		outPath    = flag.String("out", "", "path to NDJSON output file (required)")
		configPath = flag.String("config", "", "path to config file")
		dbPath     = flag.String("db", "", "override database path")
		docsDir    = flag.String("docs", "", "override docs directory")
	)
	flag.Parse()

	if *batchPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(*batchPath, *outPath, *configPath, *dbPath, *docsDir, logger); err != nil {
		logger.Fatal("Copilot failed", zap.Error(err))
	}
}

func run(batchPath, outPath, configPath, dbPath, docsDir string, logger *zap.Logger) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if docsDir != "" {
		cfg.Docs.Dir = docsDir
	}

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Metrics server listening", zap.String("addr", addr))
			server := &http.Server{
				Addr:         addr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	store, err := dataset.Open(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	views, err := dataset.LoadViewDefs(cfg.Database.ViewsFile)
	if err != nil {
		return err
	}
	if err := store.CreateCompatViews(ctx, views); err != nil {
		return fmt.Errorf("create compat views: %w", err)
	}

	schema, err := store.Schema(ctx)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	tables, err := store.TableNames(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	index, err := retrieval.New(cfg.Docs.Dir, logger)
	if err != nil {
		return err
	}

	predictor := llm.NewClient(cfg.Predictor, logger)

	engine, err := workflow.NewEngine(workflow.Config{
		Router:      predictor,
		Retriever:   retrieverAdapter{idx: index},
		Planner:     predictor,
		Generator:   predictor,
		Repairer:    predictor,
		Synthesizer: predictor,
		Executor:    executorAdapter{store: store},
		Schema:      schema,
		Tables:      tables,
		TopK:        cfg.Workflow.TopK,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	results := cache.New(cfg.Cache, logger)
	defer results.Close()

	in, err := os.Open(batchPath)
	if err != nil {
		return fmt.Errorf("open batch input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create batch output: %w", err)
	}
	defer out.Close()

	processor := batch.NewProcessor(engine, results, cfg.Workflow.QuestionTimeout, logger)
	if err := processor.Process(ctx, in, out); err != nil {
		return err
	}

	logger.Info("Results written", zap.String("path", outPath))
	return nil
}
