package scripts

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
)

// IngestOptions configures Ingest.
type IngestOptions struct {
	// BatchSize is the number of lines upserted per call.
	BatchSize int
	// Logger provides structured logging.
	Logger logging.Logger
}

// Ingest reads one script per known film from dir (files named
// <movie-slug>.txt), splits them into one document per non-blank line and
// upserts them into store. Missing films are skipped. It returns the number
// of indexed lines.
func Ingest(ctx context.Context, store memory.Store, dir string, optFns ...func(o *IngestOptions)) (int, error) {
	opts := IngestOptions{BatchSize: 100}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	total := 0
	for _, movie := range Movies {
		f, err := os.Open(filepath.Join(dir, movie+".txt"))
		if os.IsNotExist(err) {
			logger.Warn("scripts.ingest.missing", "movie", movie, "dir", dir)
			continue
		}
		if err != nil {
			return total, fmt.Errorf("open script %s: %w", movie, err)
		}

		n, err := IngestScript(ctx, store, movie, f, opts.BatchSize)
		_ = f.Close()
		if err != nil {
			return total, err
		}
		logger.Info("scripts.ingest.movie", "movie", movie, "lines", n)
		total += n
	}
	return total, nil
}

// IngestScript indexes the lines of one script read from r.
func IngestScript(ctx context.Context, store memory.Store, movie string, r io.Reader, batchSize int) (int, error) {
	if !ValidMovie(movie) {
		return 0, fmt.Errorf("unknown movie %q", movie)
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	var (
		batch  []memory.Document
		lineNo int
		count  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("index %s: %w", movie, err)
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		batch = append(batch, memory.Document{
			ID:       fmt.Sprintf("%s-%d", movie, lineNo),
			Content:  line,
			Metadata: map[string]string{MovieKey: movie},
		})
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return count, fmt.Errorf("read %s: %w", movie, err)
	}
	return count, flush()
}
