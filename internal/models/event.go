package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates pipeline progress notifications.
type EventType string

const (
	EventImportStart    EventType = "import_start"
	EventPhotoStart     EventType = "photo_start"
	EventExifExtracted  EventType = "exif_extracted"
	EventLocationFound  EventType = "location_found"
	EventAIAnalyzing    EventType = "ai_analyzing"
	EventAIComplete     EventType = "ai_complete"
	EventPhotoComplete  EventType = "photo_complete"
	EventPhotoError     EventType = "photo_error"
	EventImportComplete EventType = "import_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// Event is one ordered progress notification for a task. Seq is the event's
// position in the task's durable log and the cursor unit for stream replay.
type Event struct {
	Seq       int             `json:"seq"`
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Envelope renders the wire shape {"type": ..., "data": {...}}.
func (e Event) Envelope() ([]byte, error) {
	data := e.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return json.Marshal(struct {
		Type EventType       `json:"type"`
		Data json.RawMessage `json:"data"`
	}{Type: e.Type, Data: data})
}

// NewEvent builds an event with a marshaled payload. Seq is assigned by the
// record store on append.
func NewEvent(typ EventType, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{Type: typ, Data: raw, Timestamp: time.Now().UTC()}, nil
}

// Progress reports 1-based batch position.
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

type ImportStartData struct {
	Total   int    `json:"total"`
	Message string `json:"message"`
}

type PhotoStartData struct {
	PhotoID  string   `json:"photo_id"`
	Filename string   `json:"filename"`
	Filepath string   `json:"filepath"`
	Progress Progress `json:"progress"`
}

type ExifExtractedData struct {
	PhotoID  string   `json:"photo_id"`
	Filename string   `json:"filename"`
	Exif     ExifData `json:"exif"`
}

type LocationFoundData struct {
	PhotoID  string `json:"photo_id"`
	Filename string `json:"filename"`
	Location string `json:"location"`
}

type AIAnalyzingData struct {
	PhotoID  string `json:"photo_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

type AICompleteData struct {
	PhotoID     string   `json:"photo_id"`
	Filename    string   `json:"filename"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Mood        string   `json:"mood"`
	Subjects    string   `json:"subjects"`
	Scores      Scores   `json:"scores"`
}

// PhotoSummary is the condensed metadata carried by photo_complete.
// Tags hold at most the first five.
type PhotoSummary struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Location    *string  `json:"location"`
	Scores      Scores   `json:"scores"`
}

type PhotoCompleteData struct {
	PhotoID  string       `json:"photo_id"`
	Filename string       `json:"filename"`
	Success  bool         `json:"success"`
	Metadata PhotoSummary `json:"metadata"`
}

type PhotoErrorData struct {
	PhotoID  string `json:"photo_id"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type ImportCompleteData struct {
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Message   string `json:"message"`
}

type ErrorData struct {
	Message string `json:"message"`
}
