package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// exportRow is the parquet schema for exported aggregates.
type exportRow struct {
	CreatedAt  int64  `parquet:"created_at"`
	Context    string `parquet:"context"`
	Category   string `parquet:"category"`
	Severity   string `parquet:"severity"`
	MatchCount int32  `parquet:"match_count"`
}

// ExportParquet writes all aggregate rows since the given time to a
// parquet file under dir and returns the number of rows written. The
// export contains the same aggregate-only columns as the database.
func (s *Store) ExportParquet(ctx context.Context, dir string, since time.Time) (string, int, error) {
	records, err := s.recordsSince(ctx, since)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("violations-%s.parquet", time.Now().UTC().Format("20060102-150405")))
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file, parquet.SchemaOf(new(exportRow)))

	written := 0
	for _, r := range records {
		row := exportRow{
			CreatedAt:  r.CreatedAt.Unix(),
			Context:    r.Context,
			Category:   r.Category,
			Severity:   r.Severity,
			MatchCount: int32(r.MatchCount),
		}
		if err := writer.Write(&row); err != nil {
			return "", written, fmt.Errorf("failed to write export row: %w", err)
		}
		written++
	}

	if err := writer.Close(); err != nil {
		return "", written, fmt.Errorf("failed to finalize export file: %w", err)
	}

	s.logger.Info("Violation aggregates exported",
		zap.String("path", path),
		zap.Int("rows", written))

	return path, written, nil
}
