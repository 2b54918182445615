package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"visualdupfinder/internal/models"
)

// Run is one recorded pipeline run.
type Run struct {
	ID        string
	Folder    string
	Mode      string
	Strategy  string
	Threshold int
	StartedAt time.Time
	Stats     models.RunStats

	SortIntoFolders bool
	RemainsAction   models.RemainsAction
}

const runColumns = `id, folder, mode, strategy, threshold, started_at,
	files_total, files_validated, files_invalid, cache_hits, groups_found, grouped_files, marked_for_removal,
	scan_ns, hash_ns, group_ns, select_ns, total_ns, sort_into_folders, remains_action`

// RecordRun stores run and returns its new identifier.
func (s *Storage) RecordRun(run Run) (string, error) {
	id := uuid.NewString()
	st := run.Stats
	_, err := s.db.Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, run.Folder, run.Mode, run.Strategy, run.Threshold, toUnixNano(run.StartedAt),
		st.FilesTotal, st.FilesValidated, st.FilesInvalid, st.CacheHits, st.GroupsFound, st.GroupedFiles, st.MarkedForRemove,
		int64(st.ScanTime), int64(st.HashTime), int64(st.GroupTime), int64(st.SelectTime), int64(st.TotalTime),
		boolToInt(run.SortIntoFolders), string(run.RemainsAction),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Storage) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run, or nil when none is recorded.
func (s *Storage) LatestRun() (*Run, error) {
	row := s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		startedAt int64
		durations [5]int64
		sortInt   int
		remains   string
	)
	st := &run.Stats
	err := row.Scan(
		&run.ID, &run.Folder, &run.Mode, &run.Strategy, &run.Threshold, &startedAt,
		&st.FilesTotal, &st.FilesValidated, &st.FilesInvalid, &st.CacheHits, &st.GroupsFound, &st.GroupedFiles, &st.MarkedForRemove,
		&durations[0], &durations[1], &durations[2], &durations[3], &durations[4],
		&sortInt, &remains,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return run, err
	}
	if err != nil {
		return run, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = fromUnixNano(startedAt)
	st.ScanTime = time.Duration(durations[0])
	st.HashTime = time.Duration(durations[1])
	st.GroupTime = time.Duration(durations[2])
	st.SelectTime = time.Duration(durations[3])
	st.TotalTime = time.Duration(durations[4])
	run.SortIntoFolders = sortInt == 1
	run.RemainsAction = models.RemainsAction(remains)
	return run, nil
}
