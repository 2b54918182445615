// Package storage persists fingerprints, groups, decisions and run history
// in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"visualdupfinder/internal/models"
)

// Decision values stored per image.
const (
	decisionNone   = ""
	decisionKeep   = "keep"
	decisionRemove = "remove"
)

// Storage handles persistence of image hashes and duplicate groups
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// imageColumns is the select list shared by every image query.
const imageColumns = `id, path, hash, file_hash, width, height, format, file_size, mod_time, capture_time, has_exif, group_id`

// SaveImages saves or updates multiple images. A re-saved image loses any
// stored decision.
func (s *Storage) SaveImages(images []*models.ImageInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO images (path, hash, file_hash, width, height, format, file_size, mod_time, capture_time, has_exif, group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, img := range images {
		// Cast uint64 to int64 for SQLite compatibility
		_, err := stmt.Exec(
			img.Path,
			int64(img.Hash),
			img.FileHash,
			img.Width,
			img.Height,
			img.Format,
			img.FileSize,
			toUnixNano(img.ModTime),
			toUnixNano(img.CaptureTime),
			boolToInt(img.HasExif),
			img.GroupID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert image %s: %w", img.Path, err)
		}
	}

	return tx.Commit()
}

// Lookup returns the stored image for path if its size and modification
// time still match, or nil on a miss.
func (s *Storage) Lookup(path string, size int64, modTime time.Time) (*models.ImageInfo, error) {
	rows, err := s.db.Query(`
		SELECT `+imageColumns+`
		FROM images
		WHERE path = ? AND file_size = ? AND mod_time = ?
	`, path, size, toUnixNano(modTime))
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	images, err := scanImages(rows)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}
	img := images[0]
	img.GroupID = 0
	return img, nil
}

// GetAllImages returns all stored images
func (s *Storage) GetAllImages() ([]*models.ImageInfo, error) {
	rows, err := s.db.Query(`SELECT ` + imageColumns + ` FROM images ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	return scanImages(rows)
}

// UpdateGroups replaces every group assignment, and every stored decision,
// with groups. Member order is kept.
func (s *Storage) UpdateGroups(groups []*models.DuplicateGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Reset all group IDs
	_, err = tx.Exec("UPDATE images SET group_id = 0, group_pos = 0, decision = '', category = ''")
	if err != nil {
		return fmt.Errorf("failed to reset groups: %w", err)
	}

	stmt, err := tx.Prepare("UPDATE images SET group_id = ?, group_pos = ? WHERE path = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, group := range groups {
		for pos, img := range group.Images {
			if _, err := stmt.Exec(group.ID, pos, img.Path); err != nil {
				return fmt.Errorf("failed to update group for %s: %w", img.Path, err)
			}
		}
	}

	return tx.Commit()
}

// GetImagesByGroupID returns images in a specific group, in group order
func (s *Storage) GetImagesByGroupID(groupID int) ([]*models.ImageInfo, error) {
	rows, err := s.db.Query(`
		SELECT `+imageColumns+`
		FROM images
		WHERE group_id = ?
		ORDER BY group_pos, path
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	return scanImages(rows)
}

// GetDuplicateGroups returns all duplicate groups with their images
func (s *Storage) GetDuplicateGroups() ([]*models.DuplicateGroup, error) {
	rows, err := s.db.Query("SELECT DISTINCT group_id FROM images WHERE group_id > 0 ORDER BY group_id")
	if err != nil {
		return nil, err
	}
	var groupIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		groupIDs = append(groupIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var groups []*models.DuplicateGroup
	for _, id := range groupIDs {
		images, err := s.GetImagesByGroupID(id)
		if err != nil {
			return nil, err
		}
		// Members deleted since the scan can leave a group of one.
		if len(images) < 2 {
			continue
		}
		groups = append(groups, &models.DuplicateGroup{ID: id, Images: images})
	}

	return groups, nil
}

// GetGroupCount returns the number of duplicate groups
func (s *Storage) GetGroupCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(DISTINCT group_id) FROM images WHERE group_id > 0").Scan(&count)
	return count, err
}

// SaveDisposition records keep/remove decisions. Paths not mentioned keep
// whatever decision they had.
func (s *Storage) SaveDisposition(d *models.Disposition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE images SET decision = ?, category = ? WHERE path = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range d.Remove {
		if _, err := stmt.Exec(decisionRemove, "", p); err != nil {
			return fmt.Errorf("failed to mark %s: %w", p, err)
		}
	}
	for cat, paths := range d.Keep {
		for _, p := range paths {
			if _, err := stmt.Exec(decisionKeep, string(cat), p); err != nil {
				return fmt.Errorf("failed to mark %s: %w", p, err)
			}
		}
	}

	return tx.Commit()
}

// GetDisposition rebuilds the stored decisions, in group order. The action
// flags come from the most recent run.
func (s *Storage) GetDisposition() (*models.Disposition, error) {
	rows, err := s.db.Query(`
		SELECT path, decision, category
		FROM images
		WHERE decision != ''
		ORDER BY group_id, group_pos, path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	d := models.NewDisposition()
	for rows.Next() {
		var path, decision, category string
		if err := rows.Scan(&path, &decision, &category); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		switch decision {
		case decisionRemove:
			d.Remove = append(d.Remove, path)
		case decisionKeep:
			cat := models.Category(category)
			d.Keep[cat] = append(d.Keep[cat], path)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	run, err := s.LatestRun()
	if err != nil {
		return nil, err
	}
	d.RemainsAction = models.RemainsRecycle
	if run != nil {
		d.SortIntoFolders = run.SortIntoFolders
		if run.RemainsAction != "" {
			d.RemainsAction = run.RemainsAction
		}
	}
	return d, nil
}

// ClearDecisions forgets the decisions for paths.
func (s *Storage) ClearDecisions(paths []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE images SET decision = '', category = '' WHERE path = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.Exec(p); err != nil {
			return fmt.Errorf("failed to clear %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// DeleteImage removes an image from the database
func (s *Storage) DeleteImage(path string) error {
	_, err := s.db.Exec("DELETE FROM images WHERE path = ?", path)
	return err
}

func scanImages(rows *sql.Rows) ([]*models.ImageInfo, error) {
	defer rows.Close()

	var images []*models.ImageInfo
	for rows.Next() {
		img := &models.ImageInfo{}
		var (
			hashInt     int64
			modTime     int64
			captureTime int64
			hasExifInt  int
			fileHash    sql.NullString
		)
		err := rows.Scan(
			&img.ID,
			&img.Path,
			&hashInt,
			&fileHash,
			&img.Width,
			&img.Height,
			&img.Format,
			&img.FileSize,
			&modTime,
			&captureTime,
			&hasExifInt,
			&img.GroupID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		img.Hash = models.Fingerprint(uint64(hashInt))
		img.FileHash = fileHash.String
		img.HasExif = hasExifInt == 1
		img.ModTime = fromUnixNano(modTime)
		img.CaptureTime = fromUnixNano(captureTime)
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return images, nil
}

// Times are stored as Unix nanoseconds so cache lookups compare exactly.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
