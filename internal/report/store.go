package report

import (
	"context"
	"log/slog"
)

// RecordStore persists records.
type RecordStore interface {
	InsertRecord(ctx context.Context, r Record) error
}

// StoreSink writes records to a RecordStore and logs failures.
type StoreSink struct {
	store  RecordStore
	logger *slog.Logger
}

// NewStoreSink creates a StoreSink. Pass nil logger to use the default logger.
func NewStoreSink(store RecordStore, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{store: store, logger: logger}
}

func (s *StoreSink) Report(ctx context.Context, r Record) {
	if err := s.store.InsertRecord(ctx, r); err != nil {
		s.logger.Error("persisting record", "host", r.Host, "kind", r.Kind, "error", err)
	}
}
