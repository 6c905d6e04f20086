package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"cellreport/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cellreport-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func TestInitDBAddsReportedByColumn(t *testing.T) {
	db := newTestDB(t)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('cell_reports') WHERE name = 'reported_by'`).Scan(&count); err != nil {
		t.Fatalf("query pragma_table_info failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected reported_by column to exist, count=%d", count)
	}
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := InitDB(path)
		if err != nil {
			t.Fatalf("InitDB pass %d failed: %v", i, err)
		}
		db.Close()
	}
}

func TestUpsertAndGetReport(t *testing.T) {
	db := newTestDB(t)

	r := domain.CellReport{
		LeaderID:   "ana",
		ReportDate: date(t, "2024-01-18"),
		Attendance: 12,
		Visitors:   2,
		Notes:      "worship night",
		Source:     "slack",
		ReportedBy: "U0ANA0001",
	}
	created, err := UpsertReport(db, r)
	if err != nil {
		t.Fatalf("UpsertReport failed: %v", err)
	}
	if !created {
		t.Fatal("expected first upsert to create a row")
	}

	r.Attendance = 15
	r.Notes = "corrected"
	created, err = UpsertReport(db, r)
	if err != nil {
		t.Fatalf("UpsertReport update failed: %v", err)
	}
	if created {
		t.Fatal("expected second upsert to update the existing row")
	}

	got, err := GetReport(db, "ana", date(t, "2024-01-18"))
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.Attendance != 15 || got.Visitors != 2 || got.Notes != "corrected" || got.ReportedBy != "U0ANA0001" {
		t.Fatalf("unexpected stored report: %+v", got)
	}
	if got.ReportDate.Format(dateLayout) != "2024-01-18" {
		t.Fatalf("unexpected report date: %s", got.ReportDate)
	}

	if _, err := GetReport(db, "ana", date(t, "2024-01-19")); !errors.Is(err, domain.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestUpsertReportConcurrentCreatesOnce(t *testing.T) {
	db := newTestDB(t)
	d := date(t, "2024-01-18")

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(attendance int) {
			defer wg.Done()
			ok, err := UpsertReport(db, domain.CellReport{LeaderID: "ana", ReportDate: d, Attendance: attendance, Source: "slack"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				created++
			}
		}(i + 1)
	}
	wg.Wait()

	if len(errs) != 0 {
		t.Fatalf("concurrent upserts failed: %v", errs)
	}
	if created != 1 {
		t.Fatalf("expected exactly one upsert to report a new row, got %d", created)
	}
	reports, err := GetReportsByDateRange(db, d, d)
	if err != nil {
		t.Fatalf("GetReportsByDateRange failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected a single stored row, got %d", len(reports))
	}
}

func TestStoredDatesAreUTC(t *testing.T) {
	db := newTestDB(t)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// A Sao Paulo date value is stored by its civil key and read back as UTC midnight.
	d := time.Date(2024, 1, 18, 0, 0, 0, 0, loc)
	if _, err := UpsertReport(db, domain.CellReport{LeaderID: "ana", ReportDate: d, Source: "slack"}); err != nil {
		t.Fatalf("UpsertReport failed: %v", err)
	}
	got, err := GetReport(db, "ana", d)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got.ReportDate.Location() != time.UTC || got.ReportDate.Format(dateLayout) != "2024-01-18" || got.ReportDate.Hour() != 0 {
		t.Fatalf("unexpected stored date: %v", got.ReportDate)
	}
}

func TestReportsByRangeAndSubmittedLeaders(t *testing.T) {
	db := newTestDB(t)

	seed := []domain.CellReport{
		{LeaderID: "ana", ReportDate: date(t, "2024-01-13"), Attendance: 9, Source: "slack"},   // previous window
		{LeaderID: "ana", ReportDate: date(t, "2024-01-18"), Attendance: 10, Source: "slack"},  // Thursday
		{LeaderID: "bruno", ReportDate: date(t, "2024-01-20"), Attendance: 7, Source: "cli"},   // Saturday
		{LeaderID: "carla", ReportDate: date(t, "2024-01-25"), Attendance: 5, Source: "slack"}, // next window
		{LeaderID: "ana", ReportDate: date(t, "2024-01-19"), Attendance: 11, Source: "slack"},
	}
	for _, r := range seed {
		if _, err := UpsertReport(db, r); err != nil {
			t.Fatalf("seed %s %s: %v", r.LeaderID, r.ReportDate.Format(dateLayout), err)
		}
	}

	from, to := date(t, "2024-01-18"), date(t, "2024-01-20")
	reports, err := GetReportsByDateRange(db, from, to)
	if err != nil {
		t.Fatalf("GetReportsByDateRange failed: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports in window, got %d", len(reports))
	}
	if reports[0].LeaderID != "ana" || reports[2].LeaderID != "bruno" {
		t.Fatalf("unexpected ordering: %+v", reports)
	}

	submitted, err := SubmittedLeaderIDs(db, []string{"ana", "bruno", "carla", "dora"}, from, to)
	if err != nil {
		t.Fatalf("SubmittedLeaderIDs failed: %v", err)
	}
	if len(submitted) != 2 {
		t.Fatalf("expected 2 submitted leaders, got %v", submitted)
	}
	if submitted["ana"].Format(dateLayout) != "2024-01-19" {
		t.Fatalf("expected latest ana report date, got %s", submitted["ana"])
	}
	if _, ok := submitted["carla"]; ok {
		t.Fatal("carla reported in the next window only")
	}

	none, err := SubmittedLeaderIDs(db, nil, from, to)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result for no ids, got %v err=%v", none, err)
	}
}

func TestDeleteReport(t *testing.T) {
	db := newTestDB(t)
	d := date(t, "2024-01-19")
	if _, err := UpsertReport(db, domain.CellReport{LeaderID: "ana", ReportDate: d, Source: "slack"}); err != nil {
		t.Fatalf("UpsertReport failed: %v", err)
	}
	if err := DeleteReport(db, "ana", d); err != nil {
		t.Fatalf("DeleteReport failed: %v", err)
	}
	if err := DeleteReport(db, "ana", d); !errors.Is(err, domain.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound on second delete, got %v", err)
	}
}

func TestReminderLogs(t *testing.T) {
	db := newTestDB(t)
	ws := date(t, "2024-01-18")
	sentAt := time.Date(2024, 1, 19, 1, 0, 0, 0, time.UTC)

	entries := []domain.ReminderLogEntry{
		{RunID: "run-1", LeaderID: "ana", Channel: "slack", WindowStart: ws, Status: domain.ReminderSent, SentAt: sentAt},
		{RunID: "run-1", LeaderID: "bruno", Channel: "telegram", WindowStart: ws, Status: domain.ReminderFailed, Error: "chat not found", SentAt: sentAt},
		{RunID: "run-2", LeaderID: "ana", Channel: "slack", WindowStart: ws, Status: domain.ReminderSent, SentAt: sentAt.Add(time.Hour)},
		{RunID: "run-0", LeaderID: "ana", Channel: "slack", WindowStart: date(t, "2024-01-11"), Status: domain.ReminderSent, SentAt: sentAt.AddDate(0, 0, -7)},
	}
	if err := InsertReminderLogs(db, entries); err != nil {
		t.Fatalf("InsertReminderLogs failed: %v", err)
	}
	if err := InsertReminderLogs(db, nil); err != nil {
		t.Fatalf("InsertReminderLogs(nil) failed: %v", err)
	}

	logs, err := GetReminderLogsByWindow(db, ws)
	if err != nil {
		t.Fatalf("GetReminderLogsByWindow failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 log entries for window, got %d", len(logs))
	}
	if logs[1].Error != "chat not found" || logs[1].Status != domain.ReminderFailed {
		t.Fatalf("unexpected failed entry: %+v", logs[1])
	}
	if logs[2].RunID != "run-2" {
		t.Fatalf("expected entries ordered by sent_at, got %+v", logs)
	}

	counts, err := CountRemindersSent(db, ws)
	if err != nil {
		t.Fatalf("CountRemindersSent failed: %v", err)
	}
	if counts["ana"] != 2 || counts["bruno"] != 0 {
		t.Fatalf("unexpected reminder counts: %v", counts)
	}
}
