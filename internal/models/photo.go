package models

import "time"

// ExifData holds the capture parameters surfaced by the exif_extracted event.
// Pointers distinguish "absent" from zero values.
type ExifData struct {
	Datetime     *string  `json:"datetime"`
	Camera       *string  `json:"camera"`
	Lens         *string  `json:"lens"`
	ISO          *int     `json:"iso"`
	Aperture     *string  `json:"aperture"`
	Shutter      *string  `json:"shutter"`
	FocalLength  *string  `json:"focal_length"`
	GPSLatitude  *float64 `json:"gps_latitude"`
	GPSLongitude *float64 `json:"gps_longitude"`
}

// Scores are the AI quality ratings, each clamped to [1.0, 5.0] and rounded
// to one decimal.
type Scores struct {
	Composition float64  `json:"composition"`
	Color       float64  `json:"color"`
	Lighting    float64  `json:"lighting"`
	Sharpness   float64  `json:"sharpness"`
	Overall     float64  `json:"overall"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// PhotoMetadata is the searchable record persisted for one photo.
type PhotoMetadata struct {
	ID          string    `json:"id"`
	FilePath    string    `json:"file_path"`
	Filename    string    `json:"filename"`
	Exif        ExifData  `json:"exif"`
	Width       *int      `json:"width,omitempty"`
	Height      *int      `json:"height,omitempty"`
	FileSize    *int64    `json:"file_size,omitempty"`
	Location    *string   `json:"location,omitempty"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Mood        string    `json:"mood,omitempty"`
	Subjects    string    `json:"subjects,omitempty"`
	Scores      Scores    `json:"scores"`
	AIProcessed bool      `json:"ai_processed"`
	AIError     string    `json:"ai_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
