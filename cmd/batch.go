package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/pipeline"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Process every document JSON file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		docs, err := loadDocuments(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		_, err = processBatch(ctx, docs, batchLimit, cfg.Batch.MaxConcurrentDocuments, env.Pipeline.Run)
		return err
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of documents to process")
	rootCmd.AddCommand(batchCmd)
}

// namedDocument is a document with the file it was read from.
type namedDocument struct {
	Path string
	Doc  model.Document
}

// loadDocuments reads every *.json file in dir, sorted by name.
func loadDocuments(dir string) ([]namedDocument, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, eris.Wrap(err, "batch: list documents")
	}
	sort.Strings(paths)

	docs := make([]namedDocument, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: open %s", p)
		}
		doc, err := readDocument(f, time.Now)
		_ = f.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read %s", p)
		}
		docs = append(docs, namedDocument{Path: p, Doc: doc})
	}
	return docs, nil
}

// runFunc is the callback signature for processing one document.
type runFunc func(ctx context.Context, doc model.Document) (*pipeline.Result, error)

// batchSummary counts terminal states across a batch.
type batchSummary struct {
	Assigned      int64
	Duplicate     int64
	Unprocessable int64
	Failed        int64
}

// processBatch applies limit, then processes docs concurrently. A failed
// document is logged and counted; it does not abort the batch.
func processBatch(ctx context.Context, docs []namedDocument, limit, concurrency int, run runFunc) (batchSummary, error) {
	var summary batchSummary
	if len(docs) == 0 {
		zap.L().Info("no documents found")
		return summary, nil
	}

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var assigned, duplicate, unprocessable, failed atomic.Int64

	for _, nd := range docs {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", nd.Path))

			res, err := run(gctx, nd.Doc)
			if err != nil {
				failed.Add(1)
				log.Error("document failed", zap.Error(err))
				return nil
			}

			switch res.Status {
			case pipeline.StatusAssigned:
				assigned.Add(1)
			case pipeline.StatusDuplicate:
				duplicate.Add(1)
			case pipeline.StatusUnprocessable:
				unprocessable.Add(1)
			}
			log.Info("document complete",
				zap.String("status", string(res.Status)),
				zap.String("trip_id", res.TripID),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "batch processing")
	}

	summary = batchSummary{
		Assigned:      assigned.Load(),
		Duplicate:     duplicate.Load(),
		Unprocessable: unprocessable.Load(),
		Failed:        failed.Load(),
	}
	zap.L().Info("batch complete",
		zap.Int64("assigned", summary.Assigned),
		zap.Int64("duplicate", summary.Duplicate),
		zap.Int64("unprocessable", summary.Unprocessable),
		zap.Int64("failed", summary.Failed),
	)
	return summary, nil
}
