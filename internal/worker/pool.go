// Package worker runs the photo ingestion pipeline. Each submitted batch
// becomes one task driven by a single goroutine: that goroutine is the only
// writer of the task's record and event log, so event sequence indexes are
// gapless by construction.
package worker

import (
	"context"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/bus"
	"github.com/uulichen-sketch/PhotoMind/internal/exif"
	"github.com/uulichen-sketch/PhotoMind/internal/geocode"
	"github.com/uulichen-sketch/PhotoMind/internal/models"
	"github.com/uulichen-sketch/PhotoMind/internal/photostore"
	"github.com/uulichen-sketch/PhotoMind/internal/store"
	"github.com/uulichen-sketch/PhotoMind/internal/telemetry"
	"github.com/uulichen-sketch/PhotoMind/internal/vision"
)

// Item is one uploaded photo staged on disk for processing.
type Item struct {
	Filename string
	Path     string
}

// Pool runs import batches with a bounded number of concurrent tasks.
type Pool struct {
	store    store.TaskStore
	bus      *bus.Bus
	photos   photostore.Store
	geocoder geocode.Resolver
	analyzer vision.Analyzer
	uploader Uploader
	extract  func(path string) (exif.Data, error)
	logger   *zap.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewPool(st store.TaskStore, b *bus.Bus, photos photostore.Store, geocoder geocode.Resolver, analyzer vision.Analyzer, uploader Uploader, maxConcurrent int, logger *zap.Logger) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Pool{
		store:    st,
		bus:      b,
		photos:   photos,
		geocoder: geocoder,
		analyzer: analyzer,
		uploader: uploader,
		extract:  exif.Extract,
		logger:   logger,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Submit registers a batch and starts processing it in the background. The
// staged files under tempDir belong to the pool from this point on and are
// removed when the task finishes. The bus topic is registered before Submit
// returns so a stream session opened right after sees the task as live.
func (p *Pool) Submit(ctx context.Context, kind string, items []Item, tempDir string) (models.Task, error) {
	files := make([]string, len(items))
	for i, it := range items {
		files[i] = it.Filename
	}
	task := models.Task{
		ID:    models.NewTaskID(),
		Kind:  kind,
		Total: len(items),
		Files: files,
	}
	created, err := p.store.Create(ctx, task)
	if err != nil {
		os.RemoveAll(tempDir)
		return models.Task{}, err
	}

	p.bus.Register(created.ID)
	telemetry.ImportsStarted.Inc()
	p.wg.Add(1)
	go p.run(created.ID, items, tempDir)
	return created, nil
}

// Wait blocks until all in-flight tasks finish. Used on shutdown.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(taskID string, items []Item, tempDir string) {
	defer p.wg.Done()
	defer os.RemoveAll(tempDir)

	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	telemetry.ActiveImports.Inc()
	defer telemetry.ActiveImports.Dec()

	// The pipeline outlives any client connection, so it runs on its own
	// context rather than a request's.
	ctx := context.Background()
	total := len(items)

	status := models.StatusProcessing
	p.emit(ctx, taskID, store.TaskUpdate{Status: &status}, models.EventImportStart, models.ImportStartData{
		Total:   total,
		Message: fmt.Sprintf("Starting import of %d photos", total),
	})

	processed, failed := 0, 0
	for i, item := range items {
		p.processPhoto(ctx, taskID, i, total, item, &processed, &failed)
	}

	p.emit(ctx, taskID, store.TaskUpdate{ClearCurrent: true}, models.EventImportComplete, models.ImportCompleteData{
		Total:     total,
		Processed: processed,
		Failed:    failed,
		Message:   fmt.Sprintf("Import finished: %d succeeded, %d failed", processed, failed),
	})

	// Partial failures still complete the batch; the counters carry the
	// detail. Only a batch with nothing to show for itself fails.
	success := processed > 0 || failed == 0
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("all %d photos failed", failed)
	}
	if err := p.store.Complete(ctx, taskID, success, errMsg); err != nil {
		p.logger.Error("complete task", zap.String("task_id", taskID), zap.Error(err))
	}
	p.bus.Finish(taskID)
	telemetry.ImportsCompleted.Inc()
}

// processPhoto runs every stage for one photo. A failed stage fails only
// this photo; the batch moves on. Panics are contained the same way.
func (p *Pool) processPhoto(ctx context.Context, taskID string, idx, total int, item Item, processed, failed *int) {
	photoID := models.NewPhotoID()
	settled := false
	fail := func(msg string) {
		*failed++
		settled = true
		telemetry.PhotosFailed.Inc()
		p.logger.Warn("photo failed",
			zap.String("task_id", taskID),
			zap.String("photo_id", photoID),
			zap.String("filename", item.Filename),
			zap.String("error", msg))
		p.emit(ctx, taskID, store.TaskUpdate{Failed: failed}, models.EventPhotoError, models.PhotoErrorData{
			PhotoID:  photoID,
			Filename: item.Filename,
			Error:    msg,
		})
	}
	defer func() {
		if r := recover(); r != nil && !settled {
			fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	p.emit(ctx, taskID, store.TaskUpdate{CurrentFile: &item.Filename}, models.EventPhotoStart, models.PhotoStartData{
		PhotoID:  photoID,
		Filename: item.Filename,
		Filepath: item.Path,
		Progress: models.Progress{
			Current:    idx + 1,
			Total:      total,
			Percentage: math.Round(float64(idx+1)/float64(total)*1000) / 10,
		},
	})

	data, err := p.extract(item.Path)
	if err != nil {
		fail(fmt.Sprintf("read image: %v", err))
		return
	}
	p.emit(ctx, taskID, store.TaskUpdate{}, models.EventExifExtracted, models.ExifExtractedData{
		PhotoID:  photoID,
		Filename: item.Filename,
		Exif:     data.ExifData,
	})

	location := p.resolveLocation(ctx, data.ExifData)
	if location != "" {
		p.emit(ctx, taskID, store.TaskUpdate{}, models.EventLocationFound, models.LocationFoundData{
			PhotoID:  photoID,
			Filename: item.Filename,
			Location: location,
		})
	}

	p.emit(ctx, taskID, store.TaskUpdate{}, models.EventAIAnalyzing, models.AIAnalyzingData{
		PhotoID:  photoID,
		Filename: item.Filename,
		Status:   "analyzing photo content",
	})
	result, err := p.analyzer.Analyze(ctx, item.Path, vision.Capture{
		Exif:     data.ExifData,
		Location: location,
		Width:    data.Width,
		Height:   data.Height,
	})
	if err != nil {
		fail(fmt.Sprintf("analyze photo: %v", err))
		return
	}
	p.emit(ctx, taskID, store.TaskUpdate{}, models.EventAIComplete, models.AICompleteData{
		PhotoID:     photoID,
		Filename:    item.Filename,
		Description: result.Description,
		Tags:        result.Tags,
		Mood:        result.Mood,
		Subjects:    result.Subjects,
		Scores:      result.Scores,
	})

	storedPath, err := p.archive(ctx, photoID, item)
	if err != nil {
		fail(fmt.Sprintf("archive photo: %v", err))
		return
	}

	photo := buildPhoto(photoID, storedPath, item.Filename, data, location, result)
	if err := p.photos.Store(ctx, photo, buildDocument(photo)); err != nil {
		fail(fmt.Sprintf("store photo record: %v", err))
		return
	}

	*processed++
	settled = true
	telemetry.PhotosProcessed.Inc()
	p.emit(ctx, taskID, store.TaskUpdate{Processed: processed}, models.EventPhotoComplete, models.PhotoCompleteData{
		PhotoID:  photoID,
		Filename: item.Filename,
		Success:  true,
		Metadata: models.PhotoSummary{
			Description: photo.Description,
			Tags:        topTags(photo.Tags, 5),
			Location:    photo.Location,
			Scores:      photo.Scores,
		},
	})
}

// resolveLocation reverse-geocodes the photo's GPS fix. A lookup failure is
// logged and treated as no location; absence never fails the photo.
func (p *Pool) resolveLocation(ctx context.Context, data models.ExifData) string {
	if p.geocoder == nil || data.GPSLatitude == nil || data.GPSLongitude == nil {
		return ""
	}
	location, err := p.geocoder.Resolve(ctx, *data.GPSLatitude, *data.GPSLongitude)
	if err != nil {
		p.logger.Warn("reverse geocode failed", zap.Error(err))
		return ""
	}
	return location
}

func (p *Pool) archive(ctx context.Context, photoID string, item Item) (string, error) {
	body, err := os.ReadFile(item.Path)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(item.Filename))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return p.uploader.Upload(ctx, photoID+ext, body, contentType)
}

// emit merges the partial task update, appends the event to the durable log,
// and only then publishes it to live subscribers.
func (p *Pool) emit(ctx context.Context, taskID string, upd store.TaskUpdate, typ models.EventType, data any) {
	ev, err := p.store.Update(ctx, taskID, upd, &store.EventDraft{Type: typ, Data: data})
	if err != nil {
		p.logger.Error("append event", zap.String("task_id", taskID), zap.String("type", string(typ)), zap.Error(err))
		return
	}
	if ev != nil {
		p.bus.Publish(taskID, *ev)
	}
}

func buildPhoto(photoID, storedPath, filename string, data exif.Data, location string, result vision.Result) models.PhotoMetadata {
	photo := models.PhotoMetadata{
		ID:          photoID,
		FilePath:    storedPath,
		Filename:    filename,
		Exif:        data.ExifData,
		Description: result.Description,
		Tags:        result.Tags,
		Mood:        result.Mood,
		Subjects:    result.Subjects,
		Scores:      result.Scores,
		AIProcessed: true,
	}
	if data.Width > 0 {
		w, h := data.Width, data.Height
		photo.Width = &w
		photo.Height = &h
	}
	if data.FileSize > 0 {
		size := data.FileSize
		photo.FileSize = &size
	}
	if location != "" {
		photo.Location = &location
	}
	return photo
}

// buildDocument is the text indexed for search: description, tags, and
// context the user would naturally query by.
func buildDocument(photo models.PhotoMetadata) string {
	parts := []string{photo.Description}
	if len(photo.Tags) > 0 {
		parts = append(parts, strings.Join(photo.Tags, " "))
	}
	if photo.Location != nil {
		parts = append(parts, *photo.Location)
	}
	if photo.Mood != "" {
		parts = append(parts, photo.Mood)
	}
	if photo.Subjects != "" {
		parts = append(parts, photo.Subjects)
	}
	return strings.Join(parts, "\n")
}

func topTags(tags []string, n int) []string {
	if tags == nil {
		return []string{}
	}
	if len(tags) > n {
		return tags[:n]
	}
	return tags
}
