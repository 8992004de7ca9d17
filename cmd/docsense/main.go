package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/docsense/docsense/config"
	"github.com/docsense/docsense/internal/docstore"
	"github.com/docsense/docsense/internal/loader"
	"github.com/docsense/docsense/internal/pipeline"
	"github.com/docsense/docsense/internal/server"
	"github.com/docsense/docsense/internal/summarizer"
	"github.com/docsense/docsense/internal/telemetry"
	"github.com/docsense/docsense/models"
	"github.com/docsense/docsense/ocr"
	"github.com/docsense/docsense/ocr/tesseract"
	"github.com/docsense/docsense/provider"
)

func main() {
	root := &cobra.Command{Use: "docsense", Short: "Ephemeral document intelligence service"}

	var cfgPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			return runServe(cfg)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")

	process := &cobra.Command{
		Use:   "process <file>",
		Short: "Process a single document and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runProcess(cfg, args[0])
		},
	}

	root.AddCommand(serve, process)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildPipeline(cfg *config.Config, metrics *telemetry.Metrics, logger *log.Logger) (*pipeline.Pipeline, *docstore.Store) {
	var onRemove func(string)
	if metrics != nil {
		onRemove = func(string) {
			metrics.RemovalsTotal.Inc()
			metrics.ActiveSessions.Dec()
		}
	}
	store := docstore.New(docstore.Options{
		Capacity:      cfg.Store.MaxDocuments,
		TTL:           cfg.Store.TTL,
		SweepInterval: cfg.Store.SweepInterval,
		OnRemove:      onRemove,
	})

	llm, err := provider.New(provider.Client(cfg.LLM.Provider), provider.Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Printf("llm disabled: %v", err)
		llm = nil
	}

	var engine ocr.Engine
	if cfg.OCR.Enabled {
		engine = tesseract.New()
	}

	p := pipeline.New(pipeline.Config{
		ChunkMaxChars: cfg.Chunking.MaxChars,
		ChunkOverlap:  cfg.Chunking.Overlap,
		TopK:          cfg.Retrieval.TopK,
		UseIndex:      cfg.Retrieval.UseIndex,
		OCRLanguages:  cfg.OCR.Languages,
	}, pipeline.Deps{
		Store: store,
		Loader: loader.New(loader.Config{
			MaxFileSizeMB: cfg.Upload.MaxFileSizeMB,
			MaxPages:      cfg.Upload.MaxPages,
			Extensions:    cfg.Upload.Extensions,
		}),
		Summarizer: summarizer.New(summarizer.Config{
			MaxSentences:   cfg.Summary.MaxSentences,
			MaxKeyPoints:   cfg.Summary.MaxKeyPoints,
			MaxPromptChars: cfg.Summary.MaxPromptChars,
		}, llm, nil),
		OCR:     engine,
		Metrics: metrics,
	})
	return p, store
}

func runServe(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[DOCSENSE] ", log.LstdFlags)

	var reg *prometheus.Registry
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.New(reg)
	}

	p, store := buildPipeline(cfg, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	store.StartSweeper(ctx)
	defer store.StopSweeper()

	srv := server.New(cfg, p, store, reg)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type processResult struct {
	DocumentID         string          `json:"document_id"`
	Filename           string          `json:"filename"`
	Status             models.Status   `json:"status"`
	Error              string          `json:"error,omitempty"`
	PageCount          int             `json:"page_count"`
	ChunkCount         int             `json:"chunk_count"`
	Entities           models.Entities `json:"entities"`
	Summary            *models.Summary `json:"summary,omitempty"`
	SuggestedQuestions []string        `json:"suggested_questions,omitempty"`
}

func runProcess(cfg *config.Config, path string) error {
	logger := log.New(log.Writer(), "[DOCSENSE] ", log.LstdFlags)
	p, store := buildPipeline(cfg, nil, logger)

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	filename := filepath.Base(path)

	id, err := p.Ingest(content, filename)
	if err != nil {
		return err
	}
	p.Run(context.Background(), id, content, filename)

	sess, ok := store.Get(id)
	if !ok {
		return fmt.Errorf("session %s vanished", id)
	}
	out := processResult{
		DocumentID: sess.ID,
		Filename:   sess.Filename,
		Status:     sess.Status,
		Error:      sess.ErrorMessage,
		PageCount:  sess.PageCount,
		ChunkCount: len(sess.Chunks),
		Entities:   sess.Entities,
		Summary:    sess.Summary,
	}
	if sess.Status == models.StatusCompleted {
		out.SuggestedQuestions, _ = p.SuggestedQuestions(id)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if sess.Status == models.StatusFailed {
		return fmt.Errorf("processing failed: %s", sess.ErrorMessage)
	}
	return nil
}
