package ingestion

import (
	"encoding/json"
	"fmt"
)

type statusFile struct {
	BatchID string            `json:"batch_id"`
	Records []statusFileEntry `json:"records"`
}

type statusFileEntry struct {
	Ref        string `json:"ref"`
	Status     string `json:"status"`
	ReportedAt string `json:"reported_at"`
}

// ParseStatusJSON parses a JSON status report and returns its records and
// batch id.
func ParseStatusJSON(data []byte) ([]StatusRecord, string, error) {
	var file statusFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("unmarshal: %w", err)
	}

	records := make([]StatusRecord, 0, len(file.Records))
	for i, entry := range file.Records {
		if entry.Ref == "" {
			return nil, "", fmt.Errorf("record %d: missing ref", i)
		}
		rec := StatusRecord{Ref: entry.Ref, Status: entry.Status}
		if entry.ReportedAt != "" {
			t, err := parseReportedAt(entry.ReportedAt)
			if err != nil {
				return nil, "", fmt.Errorf("record %d date: %w", i, err)
			}
			rec.ReportedAt = t
		}
		records = append(records, rec)
	}
	return records, file.BatchID, nil
}
