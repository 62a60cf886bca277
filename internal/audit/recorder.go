// Package audit owns the append-only compliance trail for the transmission
// pipeline. Validation outcomes, transmission attempts, acknowledgment
// receipts, and adapter errors are all recorded here, keyed by return and
// submission ID so a full per-return trail can be reconstructed.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taxpilot/efile-service/internal/crypto"
	"github.com/taxpilot/efile-service/internal/domain"
	"go.uber.org/zap"
)

// Recorder is the capability the pipeline components depend on. They never
// see the storage mechanism behind it.
type Recorder interface {
	Record(ctx context.Context, entry *domain.AuditLogEntry)
}

// Sink is the append-only ledger. No update or delete is exposed anywhere in
// the interface; retention is a separate process outside this service.
type Sink interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error)
}

// Indexer provides best-effort full-text search over the trail.
type Indexer interface {
	IndexEntry(ctx context.Context, entry *domain.AuditLogEntry) error
	Search(ctx context.Context, query string, from, size int) (*domain.AuditPage, error)
}

// Archiver stores regulatory exports of the trail.
type Archiver interface {
	StoreExport(ctx context.Context, name string, data []byte) (string, error)
}

// Service signs, persists, and indexes audit entries.
type Service struct {
	sink     Sink
	indexer  Indexer
	archiver Archiver
	signer   *crypto.AuditSigner
	logger   *zap.Logger
}

// NewService wires the audit pipeline. indexer and archiver may be nil when
// search or export infrastructure is unavailable; recording still works.
func NewService(sink Sink, indexer Indexer, archiver Archiver, signer *crypto.AuditSigner, logger *zap.Logger) *Service {
	return &Service{
		sink:     sink,
		indexer:  indexer,
		archiver: archiver,
		signer:   signer,
		logger:   logger,
	}
}

// Record signs and appends an entry. Losing a single entry is tolerable
// (writes happen outside the state-machine transaction, at-least-once), so
// persistence failures are logged rather than propagated; systematic loss
// shows up in the error logs.
func (s *Service) Record(ctx context.Context, entry *domain.AuditLogEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Signature = s.sign(entry)

	if err := s.sink.Append(ctx, entry); err != nil {
		s.logger.Error("failed to persist audit entry",
			zap.String("entry_id", entry.ID.String()),
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
		return
	}

	s.asyncIndex(entry)
}

func (s *Service) sign(entry *domain.AuditLogEntry) string {
	resourceID := ""
	if entry.ResourceID != nil {
		resourceID = *entry.ResourceID
	}
	return s.signer.Sign(
		entry.ID.String(),
		string(entry.Action),
		resourceID,
		string(entry.Severity),
		entry.Timestamp.Format(time.RFC3339),
	)
}

// asyncIndex pushes the entry to the search index in the background, best
// effort. Index failures never block or fail the caller.
func (s *Service) asyncIndex(entry *domain.AuditLogEntry) {
	if s.indexer == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic indexing audit entry", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.indexer.IndexEntry(ctx, entry); err != nil {
			s.logger.Error("failed to index audit entry",
				zap.String("entry_id", entry.ID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Trail retrieves the trail from the immutable ledger and verifies every
// signature on the way out.
func (s *Service) Trail(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	page, err := s.sink.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, entry := range page.Entries {
		resourceID := ""
		if entry.ResourceID != nil {
			resourceID = *entry.ResourceID
		}
		valid := s.signer.Verify(entry.Signature,
			entry.ID.String(),
			string(entry.Action),
			resourceID,
			string(entry.Severity),
			entry.Timestamp.Format(time.RFC3339),
		)
		if !valid {
			s.logger.Error("audit signature mismatch, potential tampering",
				zap.String("entry_id", entry.ID.String()),
			)
			return nil, fmt.Errorf("audit integrity failure: entry %s signature invalid", entry.ID)
		}
	}
	return page, nil
}

// Search queries the full-text index.
func (s *Service) Search(ctx context.Context, query string, from, size int) (*domain.AuditPage, error) {
	if s.indexer == nil {
		return nil, fmt.Errorf("audit search index is not configured")
	}
	return s.indexer.Search(ctx, query, from, size)
}

// ExportTrail writes a return's full verified trail to archive storage for a
// regulatory audit and records the export itself.
func (s *Service) ExportTrail(ctx context.Context, returnID uuid.UUID, requestedBy uuid.UUID) (string, int, error) {
	if s.archiver == nil {
		return "", 0, fmt.Errorf("audit archive storage is not configured")
	}

	page, err := s.Trail(ctx, domain.AuditFilter{ReturnID: &returnID, Limit: 10000})
	if err != nil {
		return "", 0, err
	}

	data, err := json.MarshalIndent(page.Entries, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal audit export: %w", err)
	}

	name := fmt.Sprintf("return-%s-%s.json", returnID, time.Now().UTC().Format("20060102T150405Z"))
	key, err := s.archiver.StoreExport(ctx, name, data)
	if err != nil {
		return "", 0, fmt.Errorf("failed to store audit export: %w", err)
	}

	exportEntry := domain.NewAuditEntry(domain.AuditActionTrailExported, domain.ResourceTypeAuditTrail, domain.SeverityInfo)
	exportEntry.UserID = &requestedBy
	exportEntry.ReturnID = &returnID
	details, _ := json.Marshal(map[string]any{"export_key": key, "entry_count": len(page.Entries)})
	exportEntry.Details = details
	s.Record(ctx, exportEntry)

	return key, len(page.Entries), nil
}
