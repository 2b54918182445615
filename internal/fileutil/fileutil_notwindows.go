//go:build !windows

package fileutil

import "errors"

var errNoRecycleBin = errors.New("recycle bin is only available on Windows")

func recycleBin(path string) error {
	return errNoRecycleBin
}
