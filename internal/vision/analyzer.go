// Package vision analyzes photo content and rates image quality.
package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

// Capture is the accumulated metadata from earlier pipeline stages that
// informs the analysis.
type Capture struct {
	Exif     models.ExifData
	Location string
	Width    int
	Height   int
}

// Result is one photo's analysis.
type Result struct {
	Description string
	Tags        []string
	Subjects    string
	Mood        string
	Scores      models.Scores
}

// Analyzer rates a photo. An error means the whole photo failed analysis;
// the caller decides how far that failure propagates.
type Analyzer interface {
	Analyze(ctx context.Context, path string, capture Capture) (Result, error)
}

// Static is the fallback analyzer used when no vision provider is configured.
// It returns a neutral result so imports still complete.
type Static struct{}

func (Static) Analyze(_ context.Context, _ string, capture Capture) (Result, error) {
	scores := models.Scores{
		Composition: DefaultScore,
		Color:       DefaultScore,
		Lighting:    DefaultScore,
		Sharpness:   DefaultScore,
		Overall:     Overall(DefaultScore, DefaultScore, DefaultScore, DefaultScore, nil),
		Reason:      "no vision provider configured",
	}
	return Result{
		Description: "Photo imported without AI analysis.",
		Tags:        []string{},
		Scores:      scores,
	}, nil
}

// captureContext renders the capture parameters for the analysis prompt.
func captureContext(c Capture) string {
	parts := make([]string, 0, 8)
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}
	if c.Exif.Camera != nil {
		add("camera", *c.Exif.Camera)
	}
	if c.Exif.Lens != nil {
		add("lens", *c.Exif.Lens)
	}
	if c.Exif.ISO != nil {
		add("iso", fmt.Sprintf("%d", *c.Exif.ISO))
	}
	if c.Exif.Aperture != nil {
		add("aperture", *c.Exif.Aperture)
	}
	if c.Exif.Shutter != nil {
		add("shutter", *c.Exif.Shutter)
	}
	if c.Exif.FocalLength != nil {
		add("focal length", *c.Exif.FocalLength)
	}
	if c.Exif.Datetime != nil {
		add("captured at", *c.Exif.Datetime)
	}
	add("location", c.Location)
	if c.Width > 0 && c.Height > 0 {
		add("dimensions", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	if len(parts) == 0 {
		return "no capture parameters available"
	}
	return strings.Join(parts, "; ")
}
