package fileutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"visualdupfinder/internal/models"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"photo.jpg": true, "photo_1.jpg": true}
	got := uniqueName("photo.jpg", func(name string) bool { return !taken[name] })
	if got != "photo_2.jpg" {
		t.Errorf("uniqueName = %q, want photo_2.jpg", got)
	}
	if got := uniqueName("free.png", func(string) bool { return true }); got != "free.png" {
		t.Errorf("uniqueName = %q, want free.png", got)
	}
}

func TestMoveFile_Collision(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dest")
	touch(t, filepath.Join(dest, "a.jpg"), "existing")
	src := filepath.Join(dir, "src", "a.jpg")
	touch(t, src, "incoming")

	got, err := MoveFile(src, dest)
	if err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if got != filepath.Join(dest, "a_1.jpg") {
		t.Errorf("moved to %s, want a_1.jpg", got)
	}
	if exists(src) {
		t.Error("source should be gone")
	}
	data, _ := os.ReadFile(filepath.Join(dest, "a.jpg"))
	if string(data) != "existing" {
		t.Error("existing file must not be overwritten")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	touch(t, src, "payload")
	dest := filepath.Join(dir, "b.bin")

	if err := copyFile(src, dest); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "payload" {
		t.Errorf("copy = %q, %v", data, err)
	}
	if err := copyFile(src, dest); err == nil {
		t.Error("copying onto an existing file should fail")
	}
}

func TestCopyFile_KeepsModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	touch(t, src, "payload")
	mtime := time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "b.bin")
	if err := copyFile(src, dest); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !st.ModTime().Equal(mtime) {
		t.Errorf("mod time = %v, want %v", st.ModTime(), mtime)
	}
}

func TestMoveToTrash_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("freedesktop trash layout is Linux only")
	}
	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)

	src := filepath.Join(t.TempDir(), "old photo.jpg")
	touch(t, src, "x")

	dest, err := MoveToTrash(src)
	if err != nil {
		t.Fatalf("MoveToTrash failed: %v", err)
	}
	if dest != filepath.Join(data, "Trash", "files", "old photo.jpg") {
		t.Errorf("trashed to %s", dest)
	}
	info, err := os.ReadFile(filepath.Join(data, "Trash", "info", "old photo.jpg.trashinfo"))
	if err != nil {
		t.Fatalf("trashinfo missing: %v", err)
	}
	if !strings.Contains(string(info), "old%20photo.jpg") {
		t.Errorf("trashinfo path should be URL-escaped:\n%s", info)
	}
}

func TestExecutor_Delete(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	touch(t, a, "a")
	touch(t, b, "b")

	d := models.NewDisposition()
	d.Remove = []string{a, filepath.Join(dir, "gone.jpg")}
	d.Keep[models.CategoryNone] = []string{b}
	d.RemainsAction = models.RemainsDelete

	var handled []string
	stats, err := NewExecutor(WithOnDone(func(p string) { handled = append(handled, p) })).Apply(context.Background(), d)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if stats.Deleted != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 deleted, 1 failed", stats)
	}
	if exists(a) || !exists(b) {
		t.Error("only the removal list should be deleted")
	}
	if len(handled) != 1 || handled[0] != a {
		t.Errorf("onDone got %v", handled)
	}
	if len(stats.Failures) != 1 || !strings.HasSuffix(stats.Failures[0].Path, "gone.jpg") {
		t.Errorf("failures = %+v", stats.Failures)
	}
}

func TestExecutor_MoveRequiresTarget(t *testing.T) {
	d := models.NewDisposition()
	d.Remove = []string{"/x.jpg"}
	d.RemainsAction = models.RemainsMove

	if _, err := NewExecutor().Apply(context.Background(), d); !errors.Is(err, ErrNoMoveTarget) {
		t.Errorf("err = %v, want ErrNoMoveTarget", err)
	}
}

func TestExecutor_MoveAndSort(t *testing.T) {
	dir := t.TempDir()
	dupes := filepath.Join(t.TempDir(), "dupes")
	orig := filepath.Join(dir, "orig.jpg")
	edit := filepath.Join(dir, "sub", "edit.jpg")
	extra := filepath.Join(dir, "extra.jpg")
	touch(t, orig, "o")
	touch(t, edit, "e")
	touch(t, extra, "x")

	d := models.NewDisposition()
	d.Remove = []string{extra}
	d.Keep[models.CategoryOriginals] = []string{orig}
	d.Keep[models.CategoryLastEdited] = []string{edit}
	d.SortIntoFolders = true
	d.RemainsAction = models.RemainsMove

	stats, err := NewExecutor(WithMoveTo(dupes), WithSortRoot(dir)).Apply(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Moved != 1 || stats.Sorted != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	for _, p := range []string{
		filepath.Join(dupes, "extra.jpg"),
		filepath.Join(dir, "Originals", "orig.jpg"),
		filepath.Join(dir, "Last Edited", "edit.jpg"),
	} {
		if !exists(p) {
			t.Errorf("%s should exist", p)
		}
	}
	if stats.Handled() != 3 {
		t.Errorf("Handled = %d, want 3", stats.Handled())
	}
}

func TestExecutor_DryRun(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	touch(t, a, "a")
	touch(t, b, "b")

	d := models.NewDisposition()
	d.Remove = []string{a}
	d.Keep[models.CategoryOriginals] = []string{b}
	d.SortIntoFolders = true
	d.RemainsAction = models.RemainsDelete

	stats, err := NewExecutor(WithDryRun(true)).Apply(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Deleted != 1 || stats.Sorted != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !exists(a) || !exists(b) {
		t.Error("dry run must not touch files")
	}
	if exists(filepath.Join(dir, "Originals")) {
		t.Error("dry run must not create folders")
	}
}

func TestExecutor_Cancelled(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	touch(t, a, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := models.NewDisposition()
	d.Remove = []string{a}
	d.RemainsAction = models.RemainsDelete

	if _, err := NewExecutor().Apply(ctx, d); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !exists(a) {
		t.Error("nothing should be deleted after cancellation")
	}
}
