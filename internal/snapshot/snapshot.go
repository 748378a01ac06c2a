// Package snapshot keeps an up-to-date export workbook on disk, rewritten
// whenever a record is appended.
package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"examattendance/internal/attendance"
	"examattendance/internal/export"
	"examattendance/internal/metrics"
	"examattendance/internal/queue"
)

// Source supplies the records to export.
type Source interface {
	All() []attendance.Record
	Reload(ctx context.Context) error
}

// Writer renders the full record set to Dir.
type Writer struct {
	Source   Source
	Exporter export.Exporter
	Dir      string
	// Reload re-reads the source before each write. Set it when the
	// records are appended by another process.
	Reload bool
}

// Write exports every record, most recent first, and atomically replaces
// the workbook in Dir. It returns the written path.
func (w *Writer) Write(ctx context.Context) (string, error) {
	if w.Reload {
		if err := w.Source.Reload(ctx); err != nil {
			return "", fmt.Errorf("snapshot: reload records: %w", err)
		}
	}
	file, err := w.Exporter.Export(attendance.ExportRows(attendance.Apply(w.Source.All(), attendance.Filter{})))
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(w.Dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("snapshot: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(file.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("snapshot: close: %w", err)
	}

	path := filepath.Join(w.Dir, file.Name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("snapshot: replace %s: %w", path, err)
	}
	metrics.SnapshotsWritten.Inc()
	return path, nil
}

// Run rewrites the workbook for every appended-record message until msgs
// is closed.
func (w *Writer) Run(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		if msg.Type != queue.TypeRecordAppended {
			continue
		}
		path, err := w.Write(ctx)
		if err != nil {
			log.Printf("snapshot after record %s failed: %v", msg.Body, err)
			continue
		}
		log.Printf("record %s: snapshot written to %s", msg.Body, path)
	}
}
