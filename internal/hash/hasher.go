package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"visualdupfinder/internal/models"
)

// supportedExtensions is the allow-list applied while walking folders.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// ValidationError carries the reason a file could not be fingerprinted.
type ValidationError struct {
	Path   string
	Reason models.InvalidReason
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Reason, e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the invalid reason from an error returned by HashImage.
// Unclassified errors count as decode errors.
func ReasonOf(err error) models.InvalidReason {
	if err == nil {
		return models.ReasonNone
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return models.ReasonDecodeError
}

// Hasher computes perceptual hashes for images
type Hasher struct {
	timeout time.Duration
	// slots bounds decodes in flight, including ones abandoned by a timeout.
	slots chan struct{}
}

// NewHasher creates a new Hasher. A zero timeout disables the per-file limit.
func NewHasher(timeout time.Duration) *Hasher {
	return &Hasher{timeout: timeout}
}

// LimitDecodes caps concurrent decodes at n. A decode that timed out keeps
// its slot until it really finishes.
func (h *Hasher) LimitDecodes(n int) *Hasher {
	if n > 0 {
		h.slots = make(chan struct{}, n)
	}
	return h
}

// Validate decodes path and reports either its metadata or why it was rejected.
// It never returns an error: failures become an invalid outcome.
func (h *Hasher) Validate(path string) models.ValidationOutcome {
	var (
		info *models.ImageInfo
		err  error
	)
	if h.timeout > 0 {
		info, err = h.HashImageWithTimeout(path, h.timeout)
	} else {
		info, err = h.HashImage(path)
	}
	if err != nil {
		return models.ValidationOutcome{Path: path, Reason: ReasonOf(err), Err: err}
	}
	return models.ValidationOutcome{Path: path, Info: info}
}

// HashImage computes the perceptual hash and extracts metadata for an image
func (h *Hasher) HashImage(path string) (*models.ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: models.ReasonUnreadable, Err: err}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: models.ReasonUnreadable, Err: err}
	}
	if stat.IsDir() {
		return nil, &ValidationError{Path: path, Reason: models.ReasonUnreadable, Err: errors.New("is a directory")}
	}

	img, format, err := image.Decode(file)
	if err != nil {
		reason := models.ReasonDecodeError
		if errors.Is(err, image.ErrFormat) {
			reason = models.ReasonUnsupported
		}
		return nil, &ValidationError{Path: path, Reason: reason, Err: err}
	}

	if img.Bounds().Empty() {
		return nil, &ValidationError{Path: path, Reason: models.ReasonDecodeError, Err: errors.New("image has no pixels")}
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: models.ReasonDecodeError, Err: fmt.Errorf("compute hash: %w", err)}
	}

	bounds := img.Bounds()
	format = strings.ToLower(format)

	// Decode consumed the reader; metadata is read from a fresh position.
	meta := readMetadata(file, format)

	return &models.ImageInfo{
		Path:        path,
		Hash:        models.Fingerprint(hash.GetHash()),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Format:      format,
		FileSize:    stat.Size(),
		ModTime:     stat.ModTime(),
		CaptureTime: meta.captureTime,
		HasExif:     meta.hasExif,
	}, nil
}

// HashImageWithTimeout hashes an image with a timeout
func (h *Hasher) HashImageWithTimeout(path string, timeout time.Duration) (*models.ImageInfo, error) {
	type result struct {
		info *models.ImageInfo
		err  error
	}
	timedOut := &ValidationError{
		Path:   path,
		Reason: models.ReasonDecodeError,
		Err:    fmt.Errorf("timeout after %v", timeout),
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if h.slots != nil {
		select {
		case h.slots <- struct{}{}:
		case <-timer.C:
			return nil, timedOut
		}
	}

	done := make(chan result, 1)
	go func() {
		info, err := h.HashImage(path)
		if h.slots != nil {
			<-h.slots
		}
		done <- result{info, err}
	}()

	select {
	case r := <-done:
		return r.info, r.err
	case <-timer.C:
		return nil, timedOut
	}
}

// ComputeFileHash computes the SHA256 hash of a file
func ComputeFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsSupportedImage checks if a file is a supported image format
func IsSupportedImage(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}
