// Package fileutil moves, recycles and deletes files on behalf of a
// disposition.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// MoveFile moves src into destDir and returns its new path. A name already
// taken in destDir gets a counter suffix (photo.jpg -> photo_1.jpg).
// The modification time survives the move.
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	name := uniqueName(filepath.Base(src), func(n string) bool {
		return !exists(filepath.Join(destDir, n))
	})
	dest := filepath.Join(destDir, name)
	if err := relocate(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// uniqueName returns name, or the first name_N.ext that free accepts.
func uniqueName(name string, free func(string) bool) string {
	if free(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		if candidate := fmt.Sprintf("%s_%d%s", stem, n, ext); free(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// relocate renames src to dest, copying across file systems when a rename
// is impossible.
func relocate(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile writes a copy of src to dest with the same mode and
// modification time. A partial dest is removed on failure.
func copyFile(src, dest string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, st.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	return os.Chtimes(dest, time.Now(), st.ModTime())
}

// MoveToTrash sends src to the platform trash and returns where it ended up
// (empty on Windows, where the shell owns the location).
//   - Windows: Recycle Bin
//   - Linux: $XDG_DATA_HOME/Trash or ~/.local/share/Trash, freedesktop.org layout
//   - macOS: ~/.Trash
//   - elsewhere: ~/visualdupfinder_trash
func MoveToTrash(src string) (string, error) {
	switch runtime.GOOS {
	case "windows":
		return "", recycleBin(src)
	case "linux":
		root, err := linuxTrashRoot()
		if err != nil {
			return "", err
		}
		return moveToLinuxTrash(src, root)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, "visualdupfinder_trash")
	if runtime.GOOS == "darwin" {
		dir = filepath.Join(home, ".Trash")
	}
	return MoveFile(src, dir)
}

// linuxTrashRoot returns the home trash directory, holding files/ and info/.
func linuxTrashRoot() (string, error) {
	if data := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(data) {
		return filepath.Join(data, "Trash"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "Trash"), nil
}

// moveToLinuxTrash moves src into root/files and writes the matching
// root/info/<name>.trashinfo that file managers restore from.
func moveToLinuxTrash(src, root string) (string, error) {
	files, info := filepath.Join(root, "files"), filepath.Join(root, "info")
	if err := os.MkdirAll(files, 0700); err != nil {
		return "", fmt.Errorf("failed to create trash directory: %w", err)
	}
	if err := os.MkdirAll(info, 0700); err != nil {
		return "", fmt.Errorf("failed to create trash directory: %w", err)
	}

	abs, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}

	// The name must be free in files/ and info/ alike.
	name := uniqueName(filepath.Base(abs), func(n string) bool {
		return !exists(filepath.Join(files, n)) && !exists(filepath.Join(info, n+".trashinfo"))
	})
	infoPath := filepath.Join(info, name+".trashinfo")

	entry := "[Trash Info]\n" +
		"Path=" + (&url.URL{Path: abs}).EscapedPath() + "\n" +
		"DeletionDate=" + time.Now().Format("2006-01-02T15:04:05") + "\n"
	if err := os.WriteFile(infoPath, []byte(entry), 0600); err != nil {
		return "", err
	}

	dest := filepath.Join(files, name)
	if err := relocate(abs, dest); err != nil {
		os.Remove(infoPath)
		return "", err
	}
	return dest, nil
}
