package hash

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/bep/imagemeta"
	"github.com/rwcarlsen/goexif/exif"
)

type metadata struct {
	captureTime time.Time
	hasExif     bool
}

// exifDateLayouts covers EXIF ("2006:01:02 15:04:05") and XMP (ISO 8601) dates.
var exifDateLayouts = []string{
	"2006:01:02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// imagemetaFormats maps decoder format names to imagemeta formats.
// JPEG is handled by goexif first.
var imagemetaFormats = map[string]imagemeta.ImageFormat{
	"jpeg": imagemeta.JPEG,
	"png":  imagemeta.PNG,
	"webp": imagemeta.WebP,
	"tiff": imagemeta.TIFF,
}

// readMetadata extracts the capture timestamp, if any. It never fails: a file
// without usable metadata simply has a zero capture time.
func readMetadata(file *os.File, format string) metadata {
	if format == "jpeg" || format == "tiff" {
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			if x, err := exif.Decode(file); err == nil {
				m := metadata{hasExif: true}
				if t, err := x.DateTime(); err == nil {
					m.captureTime = t
					return m
				}
				if format == "jpeg" {
					return m
				}
			}
		}
	}

	imgFormat, ok := imagemetaFormats[format]
	if !ok {
		return metadata{}
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return metadata{}
	}

	var m metadata
	_, err := imagemeta.Decode(imagemeta.Options{
		R:           file,
		ImageFormat: imgFormat,
		Sources:     imagemeta.EXIF | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return ti.Tag == "DateTimeOriginal" || ti.Tag == "CreateDate"
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if ti.Source == imagemeta.EXIF {
				m.hasExif = true
			}
			if t, ok := tagTime(ti.Value); ok {
				// DateTimeOriginal wins over CreateDate.
				if m.captureTime.IsZero() || ti.Tag == "DateTimeOriginal" {
					m.captureTime = t
				}
			}
			return nil
		},
	})
	if err != nil {
		return metadata{}
	}
	return m
}

func tagTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case string:
		return parseExifDate(val)
	case []string:
		if len(val) > 0 {
			return parseExifDate(val[0])
		}
	}
	return time.Time{}, false
}

func parseExifDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range exifDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
