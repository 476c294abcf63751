// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	raadsync "github.com/poiesic/raadsync"
	"github.com/poiesic/raadsync/ai"
	"github.com/poiesic/raadsync/config"
	"github.com/poiesic/raadsync/core"
	"github.com/poiesic/raadsync/extract"
	"github.com/poiesic/raadsync/fetch"
	"github.com/poiesic/raadsync/storage"
	"github.com/poiesic/raadsync/syncer"
)

func main() {
	app := &cli.App{
		Name:  "raadsync",
		Usage: "Sync and search council meeting documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run or resume a sync against the provider API",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Sync type (full, incremental)",
						Value:   "incremental",
					},
					&cli.StringFlag{
						Name:  "from",
						Usage: "Start date (YYYY-MM-DD), overrides the configured range",
					},
					&cli.StringFlag{
						Name:  "to",
						Usage: "End date (YYYY-MM-DD), overrides the configured range",
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Index documents with text content into the semantic index",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "doc",
						Usage: "Index a single document by ID instead of all",
					},
					&cli.BoolFlag{
						Name:  "reindex",
						Usage: "Re-embed documents whose content changed since indexing",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search indexed documents semantically",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of hits",
						Value:   10,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show sync progress",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "sync",
						Usage: "Sync ID (defaults to the active or most recent run)",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func syncCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	syncType := core.SyncType(c.String("type"))
	if err := core.ValidateSyncType(syncType); err != nil {
		return err
	}

	now := time.Now()
	var dateFrom, dateTo string
	if syncType == core.SyncTypeFull {
		dateFrom, dateTo = cfg.FullRange(now)
	} else {
		dateFrom, dateTo = cfg.IncrementalRange(now)
	}
	if v := c.String("from"); v != "" {
		dateFrom = v
	}
	if v := c.String("to"); v != "" {
		dateTo = v
	}

	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	cache, err := fetch.NewCache(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to open response cache: %w", err)
	}
	defer cache.Close()

	clientOpts := []fetch.ClientOption{fetch.WithCache(cache)}
	if cfg.APIAuthToken != "" {
		clientOpts = append(clientOpts, fetch.WithAuthToken(cfg.APIAuthToken))
	}
	client, err := fetch.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.OrganisationID, clientOpts...)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	extractor, err := extract.NewPDFExtractor()
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	syncOpts := []syncer.Option{syncer.WithWorkers(cfg.DownloadWorkers)}
	if cfg.KeepFiles {
		syncOpts = append(syncOpts, syncer.WithDocumentDir(cfg.DocumentsDir()))
	}
	sy, err := svc.NewSyncer(client, extractor, syncOpts...)
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	// First signal asks for a clean stop at the next item boundary; a second
	// one kills the process the normal way.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		slog.Info("stop requested, finishing current item")
		sy.Token().Stop()
		signal.Stop(sigCh)
	}()

	result, err := sy.StartOrResume(ctx, syncType, dateFrom, dateTo)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Sync %s: %s\n", result.SyncID, result.Status)
	fmt.Fprintf(os.Stderr, "  gremia: %d, meetings: %d\n", result.Gremia, result.Meetings)
	fmt.Fprintf(os.Stderr, "  documents: %d found, %d downloaded, %d failed\n",
		result.DocumentsFound, result.DocumentsDownloaded, result.DocumentsFailed)
	fmt.Fprintf(os.Stderr, "  images: %d stored, %d deduplicated\n",
		result.ImagesStored, result.ImagesDeduplicated)
	fmt.Fprintf(os.Stderr, "  ocr: %d processed, %d failed\n", result.OCRProcessed, result.OCRFailed)
	fmt.Fprintf(os.Stderr, "  indexed: %d documents, %d chunks\n",
		result.DocumentsIndexed, result.ChunksCreated)
	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", msg)
	}
	return nil
}

func indexCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if docID := c.Int64("doc"); docID != 0 {
		chunks, err := svc.IndexDocument(ctx, docID)
		if err != nil {
			return fmt.Errorf("indexing document %d failed: %w", docID, err)
		}
		fmt.Fprintf(os.Stderr, "Indexed document %d: %d chunks\n", docID, chunks)
		return nil
	}

	docs, chunks, err := svc.IndexAll(ctx, c.Bool("reindex"))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Indexed %d documents (%d chunks)\n", docs, chunks)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a search query is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	hits, err := svc.Search(ctx, query, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, hit := range hits {
		fmt.Printf("%2d. [%.3f] %s", i+1, hit.Similarity, hit.DocumentTitle)
		if hit.MeetingDate != "" {
			fmt.Printf(" (%s)", hit.MeetingDate)
		}
		fmt.Printf("\n    %s\n", snippet(hit.ChunkText, 160))
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	var progress *core.SyncProgress
	if syncID := c.String("sync"); syncID != "" {
		progress, err = svc.GetProgress(ctx, syncID)
		if err != nil {
			return fmt.Errorf("sync %s not found: %w", syncID, err)
		}
	} else {
		progress, err = latestSync(ctx, svc.Store())
		if err != nil {
			return err
		}
	}

	fmt.Printf("Sync %s (%s)\n", progress.SyncID, progress.Type)
	fmt.Printf("  status:  %s\n", progress.Status)
	fmt.Printf("  phase:   %s\n", progress.Phase)
	fmt.Printf("  range:   %s .. %s\n", progress.DateFrom, progress.DateTo)
	fmt.Printf("  items:   %d of %d\n", progress.ProcessedItems, progress.TotalItems)
	fmt.Printf("  started: %s\n", progress.StartedAt.Format(time.RFC3339))
	if !progress.CompletedAt.IsZero() {
		fmt.Printf("  done:    %s\n", progress.CompletedAt.Format(time.RFC3339))
	}
	if progress.Error != "" {
		fmt.Printf("  error:   %s\n", progress.Error)
	}
	return nil
}

func latestSync(ctx context.Context, store storage.Store) (*core.SyncProgress, error) {
	progress, err := store.Checkpoints().FindRunning(ctx)
	if err == nil {
		return progress, nil
	}

	for _, status := range []core.SyncStatus{
		core.SyncStatusInterrupted, core.SyncStatusCompleted, core.SyncStatusFailed,
	} {
		runs, err := store.Checkpoints().ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		if len(runs) > 0 {
			return runs[0], nil
		}
	}
	return nil, fmt.Errorf("no syncs recorded yet")
}

func openService(cfg *config.Config) (*raadsync.Service, error) {
	aiOpts := []ai.ConfigOption{
		ai.WithEmbeddingHost(cfg.EmbeddingHost),
		ai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.OCRModel != "" {
		aiOpts = append(aiOpts, ai.WithOCRHost(cfg.OCRHost), ai.WithOCRModel(cfg.OCRModel))
	}
	aiConfig := ai.NewConfig(aiOpts...)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	svc, err := raadsync.NewService(cfg.DBPath,
		raadsync.WithAIConfig(aiConfig),
		raadsync.WithImagesDir(cfg.ImagesDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return svc, nil
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
