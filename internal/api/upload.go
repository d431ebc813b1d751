package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/cache"
	"github.com/uulichen-sketch/PhotoMind/internal/models"
	"github.com/uulichen-sketch/PhotoMind/internal/ratelimit"
	"github.com/uulichen-sketch/PhotoMind/internal/store"
	"github.com/uulichen-sketch/PhotoMind/internal/telemetry"
	"github.com/uulichen-sketch/PhotoMind/internal/worker"
)

type uploadResponse struct {
	TaskID  string   `json:"task_id"`
	Status  string   `json:"status"`
	Total   int      `json:"total"`
	Files   []string `json:"files"`
	Skipped []string `json:"skipped,omitempty"`
}

// handleUpload accepts a multipart batch under the "photos" field, stages
// the supported files to a temp directory, and hands the batch to the pool.
// Unsupported extensions are skipped, not fatal; a batch with nothing
// supported is rejected.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), ratelimit.UploadKey(clientIP(r)))
		if err != nil {
			s.logger.Error("rate limiter", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "rate limit check failed")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["photos"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files in \"photos\" field")
		return
	}

	tempDir, err := os.MkdirTemp("", "photomind-upload-*")
	if err != nil {
		s.logger.Error("create staging dir", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not stage upload")
		return
	}

	var items []worker.Item
	var skipped []string
	for i, hdr := range headers {
		name := filepath.Base(hdr.Filename)
		if !s.allowedExts[strings.ToLower(filepath.Ext(name))] {
			skipped = append(skipped, name)
			continue
		}
		path := filepath.Join(tempDir, fmt.Sprintf("%03d_%s", i, name))
		if err := saveUploadedFile(hdr, path); err != nil {
			os.RemoveAll(tempDir)
			s.logger.Error("stage uploaded file", zap.String("filename", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not stage upload")
			return
		}
		items = append(items, worker.Item{Filename: name, Path: path})
	}

	if len(items) == 0 {
		os.RemoveAll(tempDir)
		writeError(w, http.StatusBadRequest, "no supported image files; allowed: "+strings.Join(s.cfg.ImageExtensions, ", "))
		return
	}

	task, err := s.pool.Submit(r.Context(), models.KindStreamingUpload, items, tempDir)
	if err != nil {
		s.logger.Error("submit import", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start import")
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		TaskID:  task.ID,
		Status:  task.Status,
		Total:   task.Total,
		Files:   task.Files,
		Skipped: skipped,
	})
}

type scanRequest struct {
	FolderPath string `json:"folder_path"`
}

// handleScan imports every supported image found under a server-side
// folder. Files are copied into a staging directory first so the pool can
// clean up after itself without touching the source folder.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	info, err := os.Stat(req.FolderPath)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, "folder does not exist")
		return
	}

	var sources []string
	err = filepath.WalkDir(req.FolderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && s.allowedExts[strings.ToLower(filepath.Ext(path))] {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("scan folder", zap.String("folder", req.FolderPath), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not scan folder")
		return
	}
	if len(sources) == 0 {
		writeError(w, http.StatusBadRequest, "no supported image files in folder")
		return
	}

	tempDir, err := os.MkdirTemp("", "photomind-scan-*")
	if err != nil {
		s.logger.Error("create staging dir", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not stage import")
		return
	}
	var items []worker.Item
	for i, src := range sources {
		name := filepath.Base(src)
		dst := filepath.Join(tempDir, fmt.Sprintf("%03d_%s", i, name))
		if err := copyFile(src, dst); err != nil {
			os.RemoveAll(tempDir)
			s.logger.Error("stage scanned file", zap.String("path", src), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not stage import")
			return
		}
		items = append(items, worker.Item{Filename: name, Path: dst})
	}

	task, err := s.pool.Submit(r.Context(), models.KindBatchUpload, items, tempDir)
	if err != nil {
		s.logger.Error("submit import", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start import")
		return
	}
	writeJSON(w, http.StatusAccepted, uploadResponse{
		TaskID: task.ID,
		Status: task.Status,
		Total:  task.Total,
		Files:  task.Files,
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func saveUploadedFile(hdr *multipart.FileHeader, path string) error {
	src, err := hdr.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func clientIP(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if i := strings.IndexByte(v, ','); i > 0 {
			return strings.TrimSpace(v[:i])
		}
		return strings.TrimSpace(v)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type taskResponse struct {
	models.Task
	Stalled bool `json:"stalled"`
}

func toTaskResponse(task models.Task) taskResponse {
	stalled := !task.Terminal() && time.Since(task.UpdatedAt) > stalledAfter
	return taskResponse{Task: task, Stalled: stalled}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	tasks, err := s.tasks.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list tasks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list tasks")
		return
	}
	out := make([]taskResponse, len(tasks))
	for i, task := range tasks {
		out[i] = toTaskResponse(task)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out, "count": len(out)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	if s.statusCache != nil {
		if task, err := s.statusCache.Get(r.Context(), taskID); err == nil {
			writeJSON(w, http.StatusOK, toTaskResponse(task))
			return
		} else if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("status cache read", zap.Error(err))
		}
	}

	task, err := s.tasks.Get(r.Context(), taskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("get task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load task")
		return
	}

	// Terminal tasks never change again, so they are safe to cache.
	if s.statusCache != nil && task.Terminal() {
		if err := s.statusCache.Set(r.Context(), task); err != nil {
			s.logger.Warn("status cache write", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}
