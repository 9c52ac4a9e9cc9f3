// Package ingestion feeds provider status report files into the reconciler.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paylane/settlement/internal/domain"
	"github.com/paylane/settlement/internal/reconciliation"
	"github.com/paylane/settlement/internal/repository"
)

// Report formats.
const (
	FormatCSV  = "csv"
	FormatPSV  = "psv"
	FormatJSON = "json"
)

// Reconciler applies one reported status.
type Reconciler interface {
	Reconcile(ctx context.Context, ref, raw string, source domain.AuditSource) (reconciliation.Result, error)
}

// ReportStore remembers which files were ingested.
type ReportStore interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	InsertIfNew(ctx context.Context, rep *repository.StatusReport) (bool, error)
}

// RowObserver receives per-row outcomes, for metrics.
type RowObserver interface {
	ReportRow(outcome string)
}

// Row outcomes.
const (
	RowApplied = "applied"
	RowNoop    = "noop"
	RowUnknown = "unknown"
	RowError   = "error"
)

// RowFailure is a row the reconciler could not apply.
type RowFailure struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// IngestResult is returned from an ingestion.
type IngestResult struct {
	ReportID  string       `json:"report_id"`
	BatchID   string       `json:"batch_id,omitempty"`
	Duplicate bool         `json:"duplicate"`
	Records   int          `json:"records"`
	Applied   int          `json:"applied"`
	Noop      int          `json:"noop"`
	Unknown   int          `json:"unknown_status"`
	Errors    int          `json:"errors"`
	Failures  []RowFailure `json:"failures,omitempty"`
}

// Service handles ingestion of status reports.
type Service struct {
	reports    ReportStore
	reconciler Reconciler
	observer   RowObserver
	logger     *slog.Logger
}

// NewService creates a new ingestion service. observer may be nil.
func NewService(reports ReportStore, reconciler Reconciler, observer RowObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reports:    reports,
		reconciler: reconciler,
		observer:   observer,
		logger:     logger.With("component", "ingestion"),
	}
}

// IngestReport parses a status report and reconciles every row with source
// report. A file whose hash was already ingested is skipped. The report is
// recorded only after its rows were processed, so an interrupted ingestion
// can be retried.
//
// format must be one of: csv, psv, json
func (s *Service) IngestReport(ctx context.Context, data []byte, format string) (*IngestResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.reports.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		s.logger.Info("status report already ingested", "hash", hash)
		return &IngestResult{Duplicate: true}, nil
	}

	var records []StatusRecord
	var batchID string
	switch format {
	case FormatCSV:
		records, err = ParseStatusCSV(data, ',')
	case FormatPSV:
		records, err = ParseStatusCSV(data, '|')
	case FormatJSON:
		records, batchID, err = ParseStatusJSON(data)
	default:
		return nil, &domain.ValidationError{Field: "format", Reason: "unsupported format " + format}
	}
	if err != nil {
		return nil, &domain.ValidationError{Field: "file", Reason: fmt.Sprintf("parse %s: %v", format, err)}
	}

	orderByReportedAt(records)

	result := &IngestResult{ReportID: uuid.NewString(), BatchID: batchID, Records: len(records)}
	for _, rec := range records {
		res, err := s.reconciler.Reconcile(ctx, rec.Ref, rec.Status, domain.SourceReport)
		switch {
		case err != nil:
			result.Errors++
			result.Failures = append(result.Failures, RowFailure{Ref: rec.Ref, Error: err.Error()})
			s.observe(RowError)
		case !res.Known:
			result.Unknown++
			s.observe(RowUnknown)
		case res.Updated:
			result.Applied++
			s.observe(RowApplied)
		default:
			result.Noop++
			s.observe(RowNoop)
		}
	}

	inserted, err := s.reports.InsertIfNew(ctx, &repository.StatusReport{
		ID:          result.ReportID,
		Format:      format,
		FileHash:    hash,
		RecordCount: len(records),
		IngestedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		result.Duplicate = true
	}

	s.logger.Info("status report ingested", "report", result.ReportID, "format", format,
		"records", result.Records, "applied", result.Applied, "noop", result.Noop,
		"unknown", result.Unknown, "errors", result.Errors)
	return result, nil
}

// orderByReportedAt sorts timestamped rows chronologically within the slots
// they occupy. Rows without a timestamp keep their file position.
func orderByReportedAt(records []StatusRecord) {
	var slots []int
	var dated []StatusRecord
	for i, rec := range records {
		if !rec.ReportedAt.IsZero() {
			slots = append(slots, i)
			dated = append(dated, rec)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].ReportedAt.Before(dated[j].ReportedAt)
	})
	for k, i := range slots {
		records[i] = dated[k]
	}
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ReportRow(outcome)
	}
}
