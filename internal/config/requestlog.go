package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/model"
)

// DefaultRequestLogLimit and MaxRequestLogLimit bound a listing page.
const (
	DefaultRequestLogLimit = 50
	MaxRequestLogLimit     = 200
)

// requestLogRow maps to the request_logs table.
type requestLogRow struct {
	ID         string `db:"id"`
	TS         int64  `db:"ts"`
	Kind       string `db:"kind"`
	Method     string `db:"method"`
	Path       string `db:"path"`
	Status     int    `db:"status"`
	DurationMs int64  `db:"duration_ms"`
	ClientIP   string `db:"client_ip"`
	UserAgent  string `db:"user_agent"`
	Principal  string `db:"principal"`
	RequestID  string `db:"request_id"`
}

func (r requestLogRow) toModel() model.RequestLog {
	return model.RequestLog{
		ID:         r.ID,
		Timestamp:  fromUnixNano(r.TS),
		Kind:       r.Kind,
		Method:     r.Method,
		Path:       r.Path,
		Status:     r.Status,
		DurationMs: r.DurationMs,
		ClientIP:   r.ClientIP,
		UserAgent:  r.UserAgent,
		Principal:  r.Principal,
		RequestID:  r.RequestID,
	}
}

const requestLogColumns = "id, ts, kind, method, path, status, duration_ms, client_ip, user_agent, principal, request_id"

// InsertRequestLog records one request. ID and Timestamp are filled in when
// empty.
func (s *Store) InsertRequestLog(ctx context.Context, entry *model.RequestLog) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate request log id: %w", err)
		}
		entry.ID = id.String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	row := requestLogRow{
		ID:         entry.ID,
		TS:         entry.Timestamp.UnixNano(),
		Kind:       entry.Kind,
		Method:     entry.Method,
		Path:       truncate(entry.Path, 1024),
		Status:     entry.Status,
		DurationMs: entry.DurationMs,
		ClientIP:   truncate(entry.ClientIP, 64),
		UserAgent:  truncate(entry.UserAgent, 200),
		Principal:  entry.Principal,
		RequestID:  truncate(entry.RequestID, 64),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO request_logs (`+requestLogColumns+`)
		 VALUES (:id, :ts, :kind, :method, :path, :status, :duration_ms, :client_ip, :user_agent, :principal, :request_id)`,
		row)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// TrimRequestLogs deletes everything older than the newest max records and
// returns how many rows were removed. A max of zero or less keeps everything.
func (s *Store) TrimRequestLogs(ctx context.Context, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	var cutoff int64
	err := s.db.GetContext(ctx, &cutoff,
		s.db.Rebind("SELECT ts FROM request_logs ORDER BY ts DESC LIMIT 1 OFFSET ?"), max-1)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find request log cutoff: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM request_logs WHERE ts < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("trim request logs: %w", err)
	}
	return res.RowsAffected()
}

// ListRequestLogs returns matching records, newest first.
func (s *Store) ListRequestLogs(ctx context.Context, filter model.RequestLogFilter) ([]model.RequestLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultRequestLogLimit
	}
	if limit > MaxRequestLogLimit {
		limit = MaxRequestLogLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []interface{}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Method != "" {
		where = append(where, "method = ?")
		args = append(args, strings.ToUpper(filter.Method))
	}
	if filter.PathContains != "" {
		where = append(where, "path LIKE ?")
		args = append(args, "%"+filter.PathContains+"%")
	}

	q := "SELECT " + requestLogColumns + " FROM request_logs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []requestLogRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}

	logs := make([]model.RequestLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, r.toModel())
	}
	return logs, nil
}

// GetRequestLog returns a single record by ID.
func (s *Store) GetRequestLog(ctx context.Context, id string) (*model.RequestLog, error) {
	var row requestLogRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind("SELECT "+requestLogColumns+" FROM request_logs WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request log: %w", err)
	}
	entry := row.toModel()
	return &entry, nil
}

// RequestLogStats summarizes the log as of now.
func (s *Store) RequestLogStats(ctx context.Context, now time.Time) (*model.RequestLogStats, error) {
	stats := &model.RequestLogStats{
		ByKind:   map[string]int64{},
		ByMethod: map[string]int64{},
	}

	if err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM request_logs"); err != nil {
		return nil, fmt.Errorf("count request logs: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.Errors,
		"SELECT COUNT(*) FROM request_logs WHERE status >= 400"); err != nil {
		return nil, fmt.Errorf("count request log errors: %w", err)
	}
	since := now.Add(-24 * time.Hour).UnixNano()
	if err := s.db.GetContext(ctx, &stats.Last24h,
		s.db.Rebind("SELECT COUNT(*) FROM request_logs WHERE ts >= ?"), since); err != nil {
		return nil, fmt.Errorf("count recent request logs: %w", err)
	}

	type group struct {
		Key   string `db:"k"`
		Count int64  `db:"n"`
	}
	var groups []group
	if err := s.db.SelectContext(ctx, &groups,
		"SELECT kind AS k, COUNT(*) AS n FROM request_logs GROUP BY kind"); err != nil {
		return nil, fmt.Errorf("group request logs by kind: %w", err)
	}
	for _, g := range groups {
		stats.ByKind[g.Key] = g.Count
	}
	groups = groups[:0]
	if err := s.db.SelectContext(ctx, &groups,
		"SELECT method AS k, COUNT(*) AS n FROM request_logs GROUP BY method"); err != nil {
		return nil, fmt.Errorf("group request logs by method: %w", err)
	}
	for _, g := range groups {
		stats.ByMethod[g.Key] = g.Count
	}
	return stats, nil
}

// ClearRequestLogs deletes every record and returns the number removed.
func (s *Store) ClearRequestLogs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM request_logs")
	if err != nil {
		return 0, fmt.Errorf("clear request logs: %w", err)
	}
	return res.RowsAffected()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
