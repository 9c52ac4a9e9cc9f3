package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// StatusRecord is one row of a provider status report.
type StatusRecord struct {
	Ref        string
	Status     string
	ReportedAt time.Time
}

// ParseStatusCSV parses a delimited status report.
//
// Expected header:
//
//	transaction_ref,status,reported_at
//
// reported_at is optional per row and accepts a date or RFC 3339 timestamp.
func ParseStatusCSV(data []byte, comma rune) ([]StatusRecord, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = comma
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("expected at least 2 columns, got %d", len(header))
	}

	var records []StatusRecord
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec := StatusRecord{
			Ref:    strings.TrimSpace(row[0]),
			Status: strings.TrimSpace(row[1]),
		}
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			rec.ReportedAt, err = parseReportedAt(strings.TrimSpace(row[2]))
			if err != nil {
				return nil, fmt.Errorf("line %d date: %w", lineNum, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseReportedAt(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
	}
	return t, err
}
