package database

import (
	"database/sql"
	"fmt"
	"time"
)

const selectColumns = `
	SELECT id, request_id, timestamp, action, path, file_name,
	       object_type, kind, error_message, duration_ms
	FROM deletions
`

// Filter narrows a history query. Zero fields match everything.
type Filter struct {
	Action string // DELETE or ERROR
	Kind   string
	Path   string // SQL LIKE pattern
	Since  time.Time
}

func (f Filter) where() (string, []interface{}) {
	clause := " WHERE 1=1"
	var args []interface{}
	if f.Action != "" {
		clause += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Kind != "" {
		clause += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if f.Path != "" {
		clause += " AND path LIKE ?"
		args = append(args, f.Path)
	}
	if !f.Since.IsZero() {
		clause += " AND timestamp >= ?"
		args = append(args, f.Since)
	}
	return clause, args
}

// GetDeletionByRequestID returns the record of a single request.
// sql.ErrNoRows is returned when the request is unknown.
func (d *DeletionDB) GetDeletionByRequestID(requestID string) (*DeletionRecord, error) {
	records, err := d.queryDeletions(selectColumns+" WHERE request_id = ?", requestID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return &records[0], nil
}

// Query returns one page of records matching f plus the total match count.
func (d *DeletionDB) Query(f Filter, limit, offset int) ([]DeletionRecord, int, error) {
	clause, args := f.where()

	var total int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM deletions"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := selectColumns + clause + " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	records, err := d.queryDeletions(query, append(args, limit, offset)...)
	return records, total, err
}

// DeletionStats holds aggregated statistics
type DeletionStats struct {
	TotalDeletions int            `json:"total_deletions"`
	TotalErrors    int            `json:"total_errors"`
	ByKind         map[string]int `json:"by_kind"`
	ByObjectType   map[string]int `json:"by_object_type"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
}

// GetDeletionStats returns statistics for the last days days
func (d *DeletionDB) GetDeletionStats(days int) (*DeletionStats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &DeletionStats{StartDate: since, EndDate: now}

	var avg sql.NullFloat64
	err := d.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN action = 'DELETE' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END),
			AVG(duration_ms)
		FROM deletions
		WHERE timestamp >= ?
	`, since).Scan(&stats.TotalDeletions, &stats.TotalErrors, &avg)
	if err != nil {
		return nil, err
	}
	stats.AvgDurationMS = avg.Float64

	if stats.ByKind, err = d.countBy("kind", since); err != nil {
		return nil, err
	}
	if stats.ByObjectType, err = d.countBy("object_type", since); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy groups records since a time by one of a fixed set of columns.
func (d *DeletionDB) countBy(column string, since time.Time) (map[string]int, error) {
	switch column {
	case "kind", "object_type", "action":
	default:
		return nil, fmt.Errorf("cannot group by %q", column)
	}

	rows, err := d.db.Query("SELECT "+column+", COUNT(*) FROM deletions WHERE timestamp >= ? GROUP BY "+column, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// DeleteOldRecords removes records older than the given number of days
func (d *DeletionDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM deletions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (d *DeletionDB) queryDeletions(query string, args ...interface{}) ([]DeletionRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		var fileName, errMsg sql.NullString

		if err := rows.Scan(
			&r.ID, &r.RequestID, &r.Timestamp, &r.Action, &r.Path, &fileName,
			&r.ObjectType, &r.Kind, &errMsg, &r.DurationMS,
		); err != nil {
			return nil, err
		}
		r.FileName = fileName.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}
	return records, rows.Err()
}
