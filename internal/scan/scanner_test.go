package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"visualdupfinder/internal/models"
)

// Minimal PNG (1x1 pixel)
var pngData = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xDE,
	0x00, 0x00, 0x00, 0x0C, 0x49, 0x44, 0x41, 0x54,
	0x08, 0xD7, 0x63, 0xF8, 0xFF, 0xFF, 0x3F, 0x00,
	0x05, 0xFE, 0x02, 0xFE, 0xDC, 0xCC, 0x59, 0xE7,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44,
	0xAE, 0x42, 0x60, 0x82,
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
}

// writePNG writes a small image whose content depends on seed.
func writePNG(t *testing.T, path string, seed int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*seed + y*7) % 256)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestNewScanner_Defaults(t *testing.T) {
	s := NewScanner()

	if s.workers != 4 {
		t.Errorf("default workers = %d, want 4", s.workers)
	}
	if s.timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", s.timeout)
	}
	if s.progress != nil {
		t.Error("default progress channel should be nil")
	}
	if s.logger == nil {
		t.Error("default logger should not be nil")
	}
}

func TestNewScanner_WithWorkers(t *testing.T) {
	s := NewScanner(WithWorkers(8))
	if s.workers != 8 {
		t.Errorf("workers = %d, want 8", s.workers)
	}

	// Zero or negative workers should not change default
	for _, n := range []int{0, -1} {
		if s := NewScanner(WithWorkers(n)); s.workers != 4 {
			t.Errorf("workers with %d = %d, want 4", n, s.workers)
		}
	}
}

func TestNewScanner_MultipleOptions(t *testing.T) {
	ch := make(chan models.Progress, 1)
	s := NewScanner(
		WithWorkers(16),
		WithTimeout(10*time.Second),
		WithProgress(ch),
		WithFileHash(true),
	)

	if s.workers != 16 {
		t.Errorf("workers = %d, want 16", s.workers)
	}
	if s.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", s.timeout)
	}
	if s.progress == nil {
		t.Error("progress channel should be set")
	}
	if !s.fileHash {
		t.Error("fileHash should be enabled")
	}
}

func TestWalk_EmptyDirectory(t *testing.T) {
	summary, err := Walk(context.Background(), t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if summary.TotalFiles != 0 || len(summary.CandidatePaths) != 0 {
		t.Errorf("expected nothing, got %+v", summary)
	}
}

func TestWalk_Summary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.png"), pngData)
	writeFile(t, filepath.Join(dir, "a.JPG"), pngData)
	writeFile(t, filepath.Join(dir, "sub", "c.png"), pngData)
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("content"))
	writeFile(t, filepath.Join(dir, "doc.pdf"), []byte("content"))
	writeFile(t, filepath.Join(dir, "Makefile"), []byte("all:"))

	summary, err := Walk(context.Background(), dir, 0)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if summary.TotalFiles != 6 {
		t.Errorf("TotalFiles = %d, want 6", summary.TotalFiles)
	}
	if want := map[string]int{".png": 2, ".jpg": 1}; !reflect.DeepEqual(summary.ImageFiles, want) {
		t.Errorf("ImageFiles = %v, want %v", summary.ImageFiles, want)
	}
	if want := map[string]int{".txt": 1, ".pdf": 1, NoExtension: 1}; !reflect.DeepEqual(summary.OtherFiles, want) {
		t.Errorf("OtherFiles = %v, want %v", summary.OtherFiles, want)
	}
	want := []string{
		filepath.Join(dir, "a.JPG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "sub", "c.png"),
	}
	if !reflect.DeepEqual(summary.CandidatePaths, want) {
		t.Errorf("CandidatePaths = %v, want %v", summary.CandidatePaths, want)
	}
	if summary.TotalImages() != 3 {
		t.Errorf("TotalImages = %d, want 3", summary.TotalImages())
	}
}

func TestWalk_MinSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tiny.png"), pngData)
	writeFile(t, filepath.Join(dir, "big.png"), append(append([]byte{}, pngData...), make([]byte, 4096)...))

	summary, err := Walk(context.Background(), dir, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if summary.SkippedSmall != 1 {
		t.Errorf("SkippedSmall = %d, want 1", summary.SkippedSmall)
	}
	if len(summary.CandidatePaths) != 1 || filepath.Base(summary.CandidatePaths[0]) != "big.png" {
		t.Errorf("CandidatePaths = %v", summary.CandidatePaths)
	}
}

func TestWalk_BadRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.png")
	writeFile(t, file, pngData)

	if _, err := Walk(context.Background(), filepath.Join(dir, "missing"), 0); err == nil {
		t.Error("expected error for missing folder")
	}
	if _, err := Walk(context.Background(), file, 0); err == nil {
		t.Error("expected error for a file root")
	}
}

func TestFingerprint_OneUnreadableAmongTen(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".png")
		if i == 6 {
			writeFile(t, p, []byte("definitely not a png"))
		} else {
			writePNG(t, p, i+1)
		}
		paths = append(paths, p)
	}

	batch, err := NewScanner(WithWorkers(3)).Fingerprint(context.Background(), paths)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}

	if len(batch.Valid) != 9 || len(batch.Invalid) != 1 {
		t.Fatalf("valid/invalid = %d/%d, want 9/1", len(batch.Valid), len(batch.Invalid))
	}
	if batch.Invalid[0].Path != paths[6] {
		t.Errorf("invalid path = %s, want %s", batch.Invalid[0].Path, paths[6])
	}
	if batch.InvalidByReason[models.ReasonUnsupported] != 1 {
		t.Errorf("InvalidByReason = %v", batch.InvalidByReason)
	}
	for _, img := range batch.Valid {
		if img.Path == paths[6] {
			t.Error("rejected file must not be in the valid set")
		}
	}
}

func TestFingerprint_InputOrderPreserved(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 40; i++ {
		p := filepath.Join(dir, fmt.Sprintf("img%02d.png", i))
		writePNG(t, p, i%7+1)
		paths = append(paths, p)
	}
	// Reverse walk order; output must follow the input, not the filesystem.
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}

	first, err := NewScanner(WithWorkers(8)).Fingerprint(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewScanner(WithWorkers(1)).Fingerprint(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}

	for i, img := range first.Valid {
		if img.Path != paths[i] {
			t.Fatalf("Valid[%d] = %s, want %s", i, img.Path, paths[i])
		}
		if img.Hash != second.Valid[i].Hash {
			t.Errorf("%s: hash differs between worker counts", img.Path)
		}
	}
}

func TestFingerprint_Progress(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".png")
		writeFile(t, p, pngData)
		paths = append(paths, p)
	}

	ch := make(chan models.Progress, 16)
	if _, err := NewScanner(WithWorkers(2), WithProgress(ch)).Fingerprint(context.Background(), paths); err != nil {
		t.Fatal(err)
	}
	close(ch)

	var events []models.Progress
	for p := range ch {
		events = append(events, p)
	}
	if len(events) == 0 {
		t.Fatal("no progress events")
	}
	last := events[len(events)-1]
	if last.Completed != 5 || last.Total != 5 || last.Percent != 100 || last.Phase != PhaseValidating {
		t.Errorf("final event = %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Completed <= events[i-1].Completed {
			t.Errorf("events not increasing: %+v", events)
		}
	}
}

func TestFingerprint_Cancelled(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.png")
	writeFile(t, p, pngData)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := NewScanner().Fingerprint(ctx, []string{p, p, p})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if batch != nil {
		t.Error("a cancelled run must not return a batch")
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*models.ImageInfo
	lookups int
}

func (c *mapCache) Lookup(path string, size int64, modTime time.Time) (*models.ImageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	info, ok := c.entries[path]
	if !ok || info.FileSize != size || !info.ModTime.Equal(modTime) {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

func TestFingerprint_Cache(t *testing.T) {
	dir := t.TempDir()
	cachedPath := filepath.Join(dir, "cached.png")
	freshPath := filepath.Join(dir, "fresh.png")
	writeFile(t, cachedPath, pngData)
	writeFile(t, freshPath, pngData)

	stat, err := os.Stat(cachedPath)
	if err != nil {
		t.Fatal(err)
	}
	cache := &mapCache{entries: map[string]*models.ImageInfo{
		cachedPath: {Path: cachedPath, Hash: 0xABCD, FileSize: stat.Size(), ModTime: stat.ModTime(), Width: 1, Height: 1},
	}}

	batch, err := NewScanner(WithCache(cache), WithFileHash(true)).Fingerprint(context.Background(), []string{cachedPath, freshPath})
	if err != nil {
		t.Fatal(err)
	}
	if batch.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", batch.CacheHits)
	}
	if cache.lookups != 2 {
		t.Errorf("lookups = %d, want 2", cache.lookups)
	}
	if batch.Valid[0].Hash != 0xABCD {
		t.Error("cached entry should be used as-is")
	}
	for _, img := range batch.Valid {
		if img.FileHash == "" {
			t.Errorf("%s: file hash missing", img.Path)
		}
	}
	if batch.Valid[0].FileHash != batch.Valid[1].FileHash {
		t.Error("identical bytes should share a file hash")
	}
}
