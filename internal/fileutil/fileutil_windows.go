//go:build windows

package fileutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"
)

var procSHFileOperationW = windows.NewLazySystemDLL("shell32.dll").NewProc("SHFileOperationW")

// SHFileOperationW operation and flags.
const (
	foDelete          = 0x3
	fofSilent         = 0x4
	fofNoConfirmation = 0x10
	fofAllowUndo      = 0x40
	fofNoErrorUI      = 0x400
)

// shFileOpStruct is SHFILEOPSTRUCTW.
type shFileOpStruct struct {
	hwnd          windows.Handle
	op            uint32
	from          *uint16
	to            *uint16
	flags         uint16
	aborted       int32
	nameMappings  uintptr
	progressTitle *uint16
}

// recycleBin sends path to the Recycle Bin. FOF_ALLOWUNDO is what makes a
// delete land there instead of being permanent.
func recycleBin(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	// pFrom is a list of paths ending in an empty string.
	from, err := windows.UTF16FromString(abs)
	if err != nil {
		return err
	}
	from = append(from, 0)

	op := shFileOpStruct{
		op:    foDelete,
		from:  &from[0],
		flags: fofAllowUndo | fofNoConfirmation | fofSilent | fofNoErrorUI,
	}
	if ret, _, _ := procSHFileOperationW.Call(uintptr(unsafe.Pointer(&op))); ret != 0 {
		return fmt.Errorf("recycle %s: SHFileOperationW returned %#x", abs, ret)
	}
	if op.aborted != 0 {
		return errors.New("recycle " + abs + ": operation aborted")
	}
	return nil
}
