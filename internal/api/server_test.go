package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/bus"
	"github.com/uulichen-sketch/PhotoMind/internal/config"
	"github.com/uulichen-sketch/PhotoMind/internal/models"
	"github.com/uulichen-sketch/PhotoMind/internal/photostore"
	"github.com/uulichen-sketch/PhotoMind/internal/speech"
	"github.com/uulichen-sketch/PhotoMind/internal/store"
	"github.com/uulichen-sketch/PhotoMind/internal/stream"
	"github.com/uulichen-sketch/PhotoMind/internal/vision"
	"github.com/uulichen-sketch/PhotoMind/internal/worker"
)

type testEnv struct {
	srv    *Server
	router http.Handler
	tasks  *store.Memory
	photos *photostore.Memory
	pool   *worker.Pool
}

func newTestEnv(t *testing.T, checks map[string]func() error) *testEnv {
	t.Helper()
	cfg := config.Config{
		ImageExtensions: []string{"jpg", "jpeg", "png"},
		MaxUploadBytes:  8 << 20,
		LibraryDir:      t.TempDir(),
	}
	logger := zap.NewNop()
	tasks := store.NewMemory()
	photos := photostore.NewMemory()
	b := bus.New()
	uploader, err := worker.NewUploader(context.Background(), cfg)
	if err != nil {
		t.Fatalf("uploader: %v", err)
	}
	pool := worker.NewPool(tasks, b, photos, nil, vision.Static{}, uploader, 2, logger)
	gateway := stream.NewGateway(tasks, b, time.Second, logger)
	srv := New(cfg, logger, tasks, photos, pool, gateway, nil, nil, nil, checks)
	return &testEnv{srv: srv, router: srv.Router(), tasks: tasks, photos: photos, pool: pool}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	for name, content := range files {
		part, err := form.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return body, form.FormDataContentType()
}

func TestUploadStartsImport(t *testing.T) {
	env := newTestEnv(t, nil)
	body, contentType := multipartUpload(t, "photos", map[string][]byte{
		"one.png":   pngBytes(t),
		"two.png":   pngBytes(t),
		"notes.txt": []byte("not a photo"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/import/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0] != "notes.txt" {
		t.Fatalf("skipped = %v", resp.Skipped)
	}

	env.pool.Wait()
	task, err := env.tasks.Get(context.Background(), resp.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.StatusCompleted || task.Processed != 2 {
		t.Fatalf("task = %+v", task)
	}
}

func TestUploadRejectsUnsupportedBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	body, contentType := multipartUpload(t, "photos", map[string][]byte{"doc.pdf": []byte("%PDF")})

	req := httptest.NewRequest(http.MethodPost, "/api/import/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRequiresPhotosField(t *testing.T) {
	env := newTestEnv(t, nil)
	body, contentType := multipartUpload(t, "wrong_field", map[string][]byte{"one.png": pngBytes(t)})

	req := httptest.NewRequest(http.MethodPost, "/api/import/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestScanImportsFolder(t *testing.T) {
	env := newTestEnv(t, nil)
	folder := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		if err := os.WriteFile(filepath.Join(folder, name), pngBytes(t), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(folder, "skip.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write skip.txt: %v", err)
	}

	payload, _ := json.Marshal(scanRequest{FolderPath: folder})
	req := httptest.NewRequest(http.MethodPost, "/api/import/scan", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("total = %d, want 2", resp.Total)
	}

	env.pool.Wait()
	task, err := env.tasks.Get(context.Background(), resp.TaskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Kind != models.KindBatchUpload || task.Processed != 2 {
		t.Fatalf("task = %+v", task)
	}

	// Source files stay where they were.
	if _, err := os.Stat(filepath.Join(folder, "a.png")); err != nil {
		t.Fatalf("source file removed: %v", err)
	}
}

func TestScanRejectsMissingFolder(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, _ := json.Marshal(scanRequest{FolderPath: "/no/such/folder"})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import/scan", bytes.NewReader(payload)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type sseEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed SSE block: %q", block)
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &ev); err != nil {
			t.Fatalf("decode SSE block %q: %v", block, err)
		}
		out = append(out, ev)
	}
	return out
}

func uploadAndWait(t *testing.T, env *testEnv, files map[string][]byte) string {
	t.Helper()
	body, contentType := multipartUpload(t, "photos", files)
	req := httptest.NewRequest(http.MethodPost, "/api/import/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d", rec.Code)
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	env.pool.Wait()
	return resp.TaskID
}

func TestEventsStreamReplaysFinishedTask(t *testing.T) {
	env := newTestEnv(t, nil)
	taskID := uploadAndWait(t, env, map[string][]byte{"one.png": pngBytes(t)})

	req := httptest.NewRequest(http.MethodGet, "/api/import/events/"+taskID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) == 0 {
		t.Fatal("no events")
	}
	if events[0].Type != string(models.EventImportStart) {
		t.Fatalf("first event = %s", events[0].Type)
	}
	if events[len(events)-1].Type != string(models.EventComplete) {
		t.Fatalf("last event = %s", events[len(events)-1].Type)
	}
}

func TestEventsStreamCursorSkipsSeen(t *testing.T) {
	env := newTestEnv(t, nil)
	taskID := uploadAndWait(t, env, map[string][]byte{"one.png": pngBytes(t)})

	full := httptest.NewRecorder()
	env.router.ServeHTTP(full, httptest.NewRequest(http.MethodGet, "/api/import/events/"+taskID, nil))
	all := parseSSE(t, full.Body.String())

	resumed := httptest.NewRecorder()
	env.router.ServeHTTP(resumed, httptest.NewRequest(http.MethodGet, "/api/import/events/"+taskID+"?last_index=2", nil))
	rest := parseSSE(t, resumed.Body.String())

	// The full stream carries the whole log plus the transport sentinel;
	// the resumed one should pick up exactly where the cursor points.
	if len(rest) != len(all)-2 {
		t.Fatalf("resumed stream has %d events, full has %d", len(rest), len(all))
	}
	if rest[len(rest)-1].Type != string(models.EventComplete) {
		t.Fatalf("resumed stream last event = %s", rest[len(rest)-1].Type)
	}
}

func TestEventsUnknownTask(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/events/task_nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventsRejectsBadCursor(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/events/task_x?last_index=-3", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTaskDetailAndList(t *testing.T) {
	env := newTestEnv(t, nil)
	taskID := uploadAndWait(t, env, map[string][]byte{"one.png": pngBytes(t)})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/tasks/"+taskID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rec.Code)
	}
	var detail taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.ID != taskID || detail.Stalled {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.EventCount == 0 {
		t.Fatal("detail missing event count")
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/tasks", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Tasks []taskResponse `json:"tasks"`
		Count int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 || list.Tasks[0].ID != taskID {
		t.Fatalf("list = %+v", list)
	}
}

func TestTaskDetailNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/tasks/task_nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func seedPhoto(t *testing.T, env *testEnv, id, description string) {
	t.Helper()
	photo := models.PhotoMetadata{
		ID:          id,
		Filename:    id + ".jpg",
		FilePath:    "/nonexistent/" + id + ".jpg",
		Description: description,
		Tags:        []string{"test"},
	}
	if err := env.photos.Store(context.Background(), photo, description); err != nil {
		t.Fatalf("seed photo: %v", err)
	}
}

func TestSearchText(t *testing.T) {
	env := newTestEnv(t, nil)
	seedPhoto(t, env, "photo_aaa", "a golden retriever running on the beach")
	seedPhoto(t, env, "photo_bbb", "city skyline at night")

	body := bytes.NewBufferString(`{"query": "beach dog", "limit": 5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/search/text", body)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count == 0 || resp.Results[0].ID != "photo_aaa" {
		t.Fatalf("search results = %+v", resp)
	}
}

func TestSearchTextRequiresQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/search/text", bytes.NewBufferString(`{"query": "  "}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchVoiceBase64(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "golden retriever"}`))
	}))
	defer provider.Close()

	env := newTestEnv(t, nil)
	env.srv.transcriber = speech.NewClient(provider.URL, "", "")
	router := env.srv.Router()
	seedPhoto(t, env, "photo_dog", "a golden retriever in the park")

	payload, _ := json.Marshal(map[string]any{
		"audio": base64.StdEncoding.EncodeToString([]byte("fake-wav-bytes")),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/search/voice", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transcript != "golden retriever" || resp.Count != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSearchVoiceUnconfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	body, contentType := multipartUpload(t, "audio", map[string][]byte{"q.webm": []byte("audio")})
	req := httptest.NewRequest(http.MethodPost, "/api/search/voice", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPhotoLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	seedPhoto(t, env, "photo_one", "first")
	seedPhoto(t, env, "photo_two", "second")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/photos?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Photos []models.PhotoMetadata `json:"photos"`
		Count  int                    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("count = %d", list.Count)
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/photos/photo_one", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/photos/photo_one", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/photos/photo_one", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthzDetailedDegraded(t *testing.T) {
	env := newTestEnv(t, map[string]func() error{
		"postgres": func() error { return nil },
		"redis":    func() error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Components["postgres"] != "ok" {
		t.Fatalf("resp = %+v", resp)
	}
}
