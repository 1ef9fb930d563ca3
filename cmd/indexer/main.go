// The indexer builds a persisted corpus index offline: either from a .docx
// document (text plus extracted images) or from a JSON file of property
// listings.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/corpus"
	"github.com/apolo-agent/backend/internal/llm"
	"github.com/apolo-agent/backend/pkg/config"
	appLogger "github.com/apolo-agent/backend/pkg/logger"
)

func main() {
	godotenv.Load()

	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Build the corpus vector index",
		SilenceUsage: true,
	}

	root.AddCommand(docxCmd(), listingsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *corpus.Builder, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := appLogger.Init(cfg.Logging.Level, "console", "stdout"); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	llmClient := llm.NewClient(llm.Config{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		Endpoint:          cfg.LLM.Endpoint,
		Model:             cfg.LLM.Model,
		EmbeddingAPIKey:   cfg.LLM.EmbeddingAPIKey,
		EmbeddingEndpoint: cfg.LLM.EmbeddingEndpoint,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		EmbedTimeout:      time.Duration(cfg.LLM.EmbedTimeoutSec) * time.Second,
	})

	builder := corpus.NewBuilder(llmClient, cfg.LLM.EmbeddingDim, corpus.BuilderConfig{
		ChunkSize:    cfg.Corpus.ChunkSize,
		MaxParagraph: cfg.Corpus.MaxParagraph,
		Workers:      cfg.Corpus.Workers,
		RateInterval: time.Duration(cfg.Corpus.RateIntervalMS) * time.Millisecond,
	})

	return cfg, builder, nil
}

func docxCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "docx <file>",
		Short: "Index a .docx document, extracting text and embedded images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, builder, err := setup()
			if err != nil {
				return err
			}
			defer appLogger.Sync()
			if outDir != "" {
				cfg.Corpus.IndexDir = outDir
			}

			docPath := args[0]
			content, err := corpus.ExtractDocx(docPath)
			if err != nil {
				return fmt.Errorf("failed to extract document: %w", err)
			}
			appLogger.Info("Document extracted",
				zap.String("file", docPath),
				zap.Int("paragraphs", len(content.Paragraphs)),
				zap.Int("images", len(content.Images)),
			)

			index, report, err := builder.Build(context.Background(), content.Paragraphs, docPath)
			if err != nil {
				return fmt.Errorf("failed to build index: %w", err)
			}

			if err := os.MkdirAll(cfg.Corpus.IndexDir, 0o755); err != nil {
				return fmt.Errorf("failed to create index dir: %w", err)
			}
			if err := index.Save(cfg.Corpus.IndexDir); err != nil {
				return fmt.Errorf("failed to save index: %w", err)
			}

			if len(content.Images) > 0 {
				records, err := corpus.WriteImages(cfg.Corpus.IndexDir, content.Images)
				if err != nil {
					return fmt.Errorf("failed to write images: %w", err)
				}
				appLogger.Info("Image catalog written", zap.Int("images", len(records)))
			}

			printReport(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory for the index (defaults to the configured index dir)")
	return cmd
}

func listingsCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "listings <file.json>",
		Short: "Index a JSON file of property listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, builder, err := setup()
			if err != nil {
				return err
			}
			defer appLogger.Sync()
			if outDir != "" {
				cfg.Corpus.IndexDir = outDir
			}

			listings, err := corpus.LoadListings(args[0])
			if err != nil {
				return fmt.Errorf("failed to load listings: %w", err)
			}
			appLogger.Info("Listings loaded", zap.Int("count", len(listings)))

			index, metas, report, err := builder.BuildFromListings(context.Background(), listings)
			if err != nil {
				return fmt.Errorf("failed to build index: %w", err)
			}

			if err := os.MkdirAll(cfg.Corpus.IndexDir, 0o755); err != nil {
				return fmt.Errorf("failed to create index dir: %w", err)
			}
			if err := index.Save(cfg.Corpus.IndexDir); err != nil {
				return fmt.Errorf("failed to save index: %w", err)
			}
			if err := corpus.SaveListingMeta(cfg.Corpus.IndexDir, metas); err != nil {
				return fmt.Errorf("failed to save listing metadata: %w", err)
			}

			printReport(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory for the index (defaults to the configured index dir)")
	return cmd
}

func printReport(report *corpus.BuildReport) {
	fmt.Printf("Indexed %d/%d chunks in %s\n",
		report.Succeeded, report.TotalChunks, report.Duration.Round(time.Millisecond))
	for _, f := range report.Failures {
		fmt.Printf("  chunk %d failed: %s\n", f.ChunkID, f.Reason)
	}
}
