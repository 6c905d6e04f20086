package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cellreport/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

const dateLayout = "2006-01-02"

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS cell_reports (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		leader_id   TEXT NOT NULL,
		report_date TEXT NOT NULL,
		attendance  INTEGER NOT NULL DEFAULT 0,
		visitors    INTEGER NOT NULL DEFAULT 0,
		notes       TEXT DEFAULT '',
		source      TEXT NOT NULL DEFAULT 'slack',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(leader_id, report_date)
	);
	CREATE INDEX IF NOT EXISTS idx_cell_reports_date ON cell_reports(report_date);

	CREATE TABLE IF NOT EXISTS reminder_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL,
		leader_id    TEXT NOT NULL,
		channel      TEXT NOT NULL DEFAULT '',
		window_start TEXT NOT NULL,
		status       TEXT NOT NULL,
		error        TEXT DEFAULT '',
		sent_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reminder_log_window ON reminder_log(window_start, leader_id);
	`
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// Migration: add reported_by column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('cell_reports') WHERE name = 'reported_by'`).Scan(&colCount)
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE cell_reports ADD COLUMN reported_by TEXT DEFAULT ''`); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate reported_by: %w", err)
		}
	}

	return db, nil
}

// UpsertReport stores a report, replacing the figures of an existing report
// for the same leader and date. It reports whether a new row was created.
// Concurrent calls for the same leader and date see exactly one creation.
func UpsertReport(db *sql.DB, r domain.CellReport) (bool, error) {
	date := r.ReportDate.Format(dateLayout)
	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO cell_reports (leader_id, report_date, attendance, visitors, notes, source, reported_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(leader_id, report_date) DO NOTHING`,
		r.LeaderID, date, r.Attendance, r.Visitors, r.Notes, r.Source, r.ReportedBy,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	created := n == 1

	if !created {
		if _, err := tx.Exec(
			`UPDATE cell_reports SET
			   attendance = ?, visitors = ?, notes = ?, source = ?, reported_by = ?,
			   updated_at = CURRENT_TIMESTAMP
			 WHERE leader_id = ? AND report_date = ?`,
			r.Attendance, r.Visitors, r.Notes, r.Source, r.ReportedBy, r.LeaderID, date,
		); err != nil {
			return false, err
		}
	}
	return created, tx.Commit()
}

func GetReport(db *sql.DB, leaderID string, date time.Time) (domain.CellReport, error) {
	row := db.QueryRow(
		`SELECT id, leader_id, report_date, attendance, visitors, notes, source, reported_by, created_at, updated_at
		 FROM cell_reports WHERE leader_id = ? AND report_date = ?`,
		leaderID, date.Format(dateLayout),
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, domain.ErrReportNotFound
	}
	return r, err
}

// GetReportsByDateRange returns reports dated in [from, to], both inclusive
// calendar dates, ordered by date and leader.
func GetReportsByDateRange(db *sql.DB, from, to time.Time) ([]domain.CellReport, error) {
	rows, err := db.Query(
		`SELECT id, leader_id, report_date, attendance, visitors, notes, source, reported_by, created_at, updated_at
		 FROM cell_reports WHERE report_date >= ? AND report_date <= ?
		 ORDER BY report_date, leader_id, id`,
		from.Format(dateLayout), to.Format(dateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.CellReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// SubmittedLeaderIDs returns which of leaderIDs have a report dated in
// [from, to], mapped to the latest such report date.
func SubmittedLeaderIDs(db *sql.DB, leaderIDs []string, from, to time.Time) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if len(leaderIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(leaderIDs)), ",")
	args := make([]any, 0, len(leaderIDs)+2)
	for _, id := range leaderIDs {
		args = append(args, id)
	}
	args = append(args, from.Format(dateLayout), to.Format(dateLayout))

	rows, err := db.Query(
		`SELECT leader_id, MAX(report_date) FROM cell_reports
		 WHERE leader_id IN (`+placeholders+`) AND report_date >= ? AND report_date <= ?
		 GROUP BY leader_id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var leaderID, date string
		if err := rows.Scan(&leaderID, &date); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("report date %q for %s: %w", date, leaderID, err)
		}
		out[leaderID] = d
	}
	return out, rows.Err()
}

func DeleteReport(db *sql.DB, leaderID string, date time.Time) error {
	res, err := db.Exec(
		`DELETE FROM cell_reports WHERE leader_id = ? AND report_date = ?`,
		leaderID, date.Format(dateLayout),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

// --- Reminder log ---

func InsertReminderLogs(db *sql.DB, entries []domain.ReminderLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO reminder_log (run_id, leader_id, channel, window_start, status, error, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		sentAt := e.SentAt
		if sentAt.IsZero() {
			sentAt = time.Now()
		}
		if _, err := stmt.Exec(
			e.RunID, e.LeaderID, e.Channel, e.WindowStart.Format(dateLayout),
			e.Status, e.Error, sentAt.UTC(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func GetReminderLogsByWindow(db *sql.DB, windowStart time.Time) ([]domain.ReminderLogEntry, error) {
	rows, err := db.Query(
		`SELECT id, run_id, leader_id, channel, window_start, status, error, sent_at
		 FROM reminder_log WHERE window_start = ?
		 ORDER BY sent_at, id`,
		windowStart.Format(dateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReminderLogEntry
	for rows.Next() {
		var e domain.ReminderLogEntry
		var ws string
		if err := rows.Scan(&e.ID, &e.RunID, &e.LeaderID, &e.Channel, &ws, &e.Status, &e.Error, &e.SentAt); err != nil {
			return nil, err
		}
		if e.WindowStart, err = time.Parse(dateLayout, ws); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountRemindersSent returns, per leader, how many reminders were delivered
// for the window starting at windowStart.
func CountRemindersSent(db *sql.DB, windowStart time.Time) (map[string]int, error) {
	rows, err := db.Query(
		`SELECT leader_id, COUNT(*) FROM reminder_log
		 WHERE window_start = ? AND status = ?
		 GROUP BY leader_id`,
		windowStart.Format(dateLayout), domain.ReminderSent,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var leaderID string
		var n int
		if err := rows.Scan(&leaderID, &n); err != nil {
			return nil, err
		}
		counts[leaderID] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanReport reads a cell_reports row. Report dates come back as midnight UTC.
func scanReport(row rowScanner) (domain.CellReport, error) {
	var r domain.CellReport
	var date string
	err := row.Scan(
		&r.ID, &r.LeaderID, &date, &r.Attendance, &r.Visitors, &r.Notes,
		&r.Source, &r.ReportedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	r.ReportDate, err = time.Parse(dateLayout, date)
	return r, err
}
