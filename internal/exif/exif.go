// Package exif extracts capture parameters and image dimensions from photo files.
package exif

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	goexif "github.com/rwcarlsen/goexif/exif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

// Data is the extraction result for one file. Missing EXIF tags leave their
// fields nil; only an unreadable or undecodable file is an error.
type Data struct {
	models.ExifData
	Width    int
	Height   int
	FileSize int64
}

// Extract reads EXIF tags and dimensions from the image at path.
func Extract(path string) (Data, error) {
	var d Data

	f, err := os.Open(path)
	if err != nil {
		return d, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return d, fmt.Errorf("stat image: %w", err)
	}
	d.FileSize = info.Size()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return d, fmt.Errorf("decode image %s: %w", info.Name(), err)
	}
	d.Width = cfg.Width
	d.Height = cfg.Height

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return d, fmt.Errorf("rewind image: %w", err)
	}

	x, err := goexif.Decode(f)
	if err != nil {
		// No EXIF block (PNG, stripped JPEG). Dimensions alone are a valid result.
		return d, nil
	}

	if dt, err := x.DateTime(); err == nil {
		s := dt.Format("2006-01-02T15:04:05")
		d.Datetime = &s
	}
	d.Camera = cameraName(x)
	if lens := stringTag(x, goexif.LensModel); lens != "" {
		d.Lens = &lens
	}
	if tag, err := x.Get(goexif.ISOSpeedRatings); err == nil {
		if iso, err := tag.Int(0); err == nil {
			d.ISO = &iso
		}
	}
	if num, den, ok := ratTag(x, goexif.FNumber); ok && den != 0 {
		s := fmt.Sprintf("f/%.1f", float64(num)/float64(den))
		d.Aperture = &s
	}
	if num, den, ok := ratTag(x, goexif.ExposureTime); ok && num != 0 && den != 0 {
		s := formatShutter(num, den)
		d.Shutter = &s
	}
	if num, den, ok := ratTag(x, goexif.FocalLength); ok && den != 0 {
		s := fmt.Sprintf("%.0fmm", float64(num)/float64(den))
		d.FocalLength = &s
	}
	if lat, lon, err := x.LatLong(); err == nil {
		d.GPSLatitude = &lat
		d.GPSLongitude = &lon
	}

	return d, nil
}

func cameraName(x *goexif.Exif) *string {
	model := stringTag(x, goexif.Model)
	if model == "" {
		return nil
	}
	make := stringTag(x, goexif.Make)
	if make != "" && !strings.HasPrefix(model, make) {
		s := make + " " + model
		return &s
	}
	return &model
}

func stringTag(x *goexif.Exif, name goexif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func ratTag(x *goexif.Exif, name goexif.FieldName) (int64, int64, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil {
		return 0, 0, false
	}
	return num, den, true
}

func formatShutter(num, den int64) string {
	if num >= den {
		return fmt.Sprintf("%.1fs", float64(num)/float64(den))
	}
	return fmt.Sprintf("1/%ds", den/num)
}
