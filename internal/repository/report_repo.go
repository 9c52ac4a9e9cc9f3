package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StatusReport records an ingested provider status file.
type StatusReport struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"`
	FileHash    string    `json:"file_hash"`
	RecordCount int       `json:"record_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// InsertIfNew stores the report unless a file with the same hash was already
// ingested. It reports whether the report is new.
func (r *ReportRepo) InsertIfNew(ctx context.Context, rep *StatusReport) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO status_reports (id, format, file_hash, record_count, ingested_at)
		VALUES (?,?,?,?,?)`,
		rep.ID, rep.Format, rep.FileHash, rep.RecordCount, formatTime(rep.IngestedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert report: %w", err)
	}
	ra, _ := res.RowsAffected()
	return ra == 1, nil
}

func (r *ReportRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM status_reports WHERE file_hash = ?", hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check hash: %w", err)
	}
	return count > 0, nil
}
