package models

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

// FingerprintBits is the fixed width of every fingerprint.
const FingerprintBits = 64

// ErrInvalidThreshold is returned when a distance threshold falls outside [0, FingerprintBits].
var ErrInvalidThreshold = errors.New("threshold out of range")

// Fingerprint is a 64-bit perceptual hash of decoded pixel content.
type Fingerprint uint64

// Distance returns the number of differing bits between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}

// ValidateThreshold checks that t is a usable distance threshold.
func ValidateThreshold(t int) error {
	if t < 0 || t > FingerprintBits {
		return fmt.Errorf("%w: %d (want 0-%d)", ErrInvalidThreshold, t, FingerprintBits)
	}
	return nil
}

// ImageInfo holds metadata and hash information for an image
type ImageInfo struct {
	ID          int64       `json:"id"`
	Path        string      `json:"path"`
	Hash        Fingerprint `json:"hash"`
	FileHash    string      `json:"file_hash,omitempty"` // SHA256 hash for exact matching
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Format      string      `json:"format"`
	FileSize    int64       `json:"file_size"`
	ModTime     time.Time   `json:"mod_time"`
	CaptureTime time.Time   `json:"capture_time,omitzero"` // EXIF/XMP DateTimeOriginal when present
	HasExif     bool        `json:"has_exif"`
	GroupID     int         `json:"group_id,omitempty"`
}

// PixelArea is width × height, used as the quality proxy.
func (i *ImageInfo) PixelArea() int64 {
	return int64(i.Width) * int64(i.Height)
}

// InvalidReason says why a candidate could not be validated.
type InvalidReason string

const (
	ReasonNone        InvalidReason = ""
	ReasonUnreadable  InvalidReason = "unreadable"
	ReasonUnsupported InvalidReason = "unsupported-format"
	ReasonDecodeError InvalidReason = "decode-error"
)

// ValidationOutcome is the per-file result of fingerprint extraction.
// Exactly one of Info or Reason is set.
type ValidationOutcome struct {
	Path   string
	Info   *ImageInfo
	Reason InvalidReason
	Err    error
}

// Valid reports whether the file produced a fingerprint.
func (o ValidationOutcome) Valid() bool {
	return o.Info != nil && o.Reason == ReasonNone
}

// DuplicateGroup represents a group of similar images.
// Images keep the order in which the files were discovered.
type DuplicateGroup struct {
	ID     int          `json:"id"`
	Images []*ImageInfo `json:"images"`
}

// Paths returns the member paths in group order.
func (g *DuplicateGroup) Paths() []string {
	paths := make([]string, len(g.Images))
	for i, img := range g.Images {
		paths[i] = img.Path
	}
	return paths
}

// Contains reports whether path is a member of the group.
func (g *DuplicateGroup) Contains(path string) bool {
	for _, img := range g.Images {
		if img.Path == path {
			return true
		}
	}
	return false
}

// ScanSummary is what the folder walk found before any decoding.
type ScanSummary struct {
	Folder         string         `json:"folder"`
	TotalFiles     int            `json:"total_files"`
	ImageFiles     map[string]int `json:"image_files"`
	OtherFiles     map[string]int `json:"other_files"`
	CandidatePaths []string       `json:"candidate_paths"`
	SkippedSmall   int            `json:"skipped_small"`
	Duration       time.Duration  `json:"duration"`
}

// TotalImages sums the per-extension image counts.
func (s *ScanSummary) TotalImages() int {
	n := 0
	for _, c := range s.ImageFiles {
		n += c
	}
	return n
}

// RunStats accumulates counters through one pipeline run.
type RunStats struct {
	FilesTotal      int                   `json:"files_total"`
	Candidates      int                   `json:"candidates"`
	FilesValidated  int                   `json:"files_validated"`
	FilesInvalid    int                   `json:"files_invalid"`
	InvalidByReason map[InvalidReason]int `json:"invalid_by_reason,omitempty"`
	CacheHits       int                   `json:"cache_hits"`
	GroupsFound     int                   `json:"groups_found"`
	GroupedFiles    int                   `json:"grouped_files"`
	MarkedForRemove int                   `json:"marked_for_removal"`

	ScanTime   time.Duration `json:"scan_time"`
	HashTime   time.Duration `json:"hash_time"`
	GroupTime  time.Duration `json:"group_time"`
	SelectTime time.Duration `json:"select_time"`
	TotalTime  time.Duration `json:"total_time"`
}

// Progress is a single progress notification.
type Progress struct {
	Phase     string `json:"phase"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
}

// NewProgress builds a progress event, deriving the percentage.
func NewProgress(phase string, completed, total int) Progress {
	p := Progress{Phase: phase, Completed: completed, Total: total}
	if total > 0 {
		p.Percent = completed * 100 / total
	}
	return p
}
