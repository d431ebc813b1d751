package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
	"github.com/uulichen-sketch/PhotoMind/internal/photostore"
	"github.com/uulichen-sketch/PhotoMind/internal/telemetry"
)

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	photos, err := s.photos.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list photos", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list photos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": photos, "count": len(photos)})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.lookupPhoto(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.lookupPhoto(w, r)
	if !ok {
		return
	}
	if err := s.photos.Delete(r.Context(), photo.ID); err != nil {
		s.logger.Error("delete photo", zap.String("photo_id", photo.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete photo")
		return
	}
	// Remove the archived original too when it lives on local disk. A
	// missing file is not an error; the record was the thing to delete.
	if !strings.HasPrefix(photo.FilePath, "s3://") {
		if err := os.Remove(photo.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove archived file", zap.String("path", photo.FilePath), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": photo.ID})
}

func (s *Server) handlePhotoFile(w http.ResponseWriter, r *http.Request) {
	photo, ok := s.lookupPhoto(w, r)
	if !ok {
		return
	}
	if strings.HasPrefix(photo.FilePath, "s3://") {
		writeError(w, http.StatusNotImplemented, "original is archived in object storage")
		return
	}
	if _, err := os.Stat(photo.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "archived file missing")
		return
	}
	http.ServeFile(w, r, photo.FilePath)
}

func (s *Server) lookupPhoto(w http.ResponseWriter, r *http.Request) (models.PhotoMetadata, bool) {
	photoID := chi.URLParam(r, "photoID")
	photo, err := s.photos.Get(r.Context(), photoID)
	if errors.Is(err, photostore.ErrPhotoNotFound) {
		writeError(w, http.StatusNotFound, "photo not found")
		return models.PhotoMetadata{}, false
	}
	if err != nil {
		s.logger.Error("get photo", zap.String("photo_id", photoID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load photo")
		return models.PhotoMetadata{}, false
	}
	return photo, true
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Query      string                 `json:"query"`
	Transcript string                 `json:"transcript,omitempty"`
	Count      int                    `json:"count"`
	Results    []models.PhotoMetadata `json:"results"`
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.runSearch(w, r, req.Query, "", req.Limit)
}

type voiceSearchRequest struct {
	Audio    string `json:"audio"` // base64
	Filename string `json:"filename"`
	Limit    int    `json:"limit"`
}

// handleSearchVoice transcribes a clip and searches with the resulting
// text. The clip arrives either as a multipart "audio" file or as base64
// in a JSON body.
func (s *Server) handleSearchVoice(w http.ResponseWriter, r *http.Request) {
	if !s.transcriber.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "voice search is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var audio io.Reader
	filename := "query.wav"
	limit := 0
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req voiceSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil || len(raw) == 0 {
			writeError(w, http.StatusBadRequest, "audio must be non-empty base64")
			return
		}
		if req.Filename != "" {
			filename = req.Filename
		}
		limit = req.Limit
		audio = bytes.NewReader(raw)
	} else {
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
			return
		}
		defer r.MultipartForm.RemoveAll()
		file, hdr, err := r.FormFile("audio")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing \"audio\" field")
			return
		}
		defer file.Close()
		filename = hdr.Filename
		if v := r.FormValue("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		audio = file
	}

	text, err := s.transcriber.Transcribe(r.Context(), filename, audio)
	if err != nil {
		s.logger.Error("transcribe", zap.Error(err))
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "could not make out any words in the audio")
		return
	}
	s.runSearch(w, r, text, text, limit)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, query, transcript string, limit int) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	telemetry.SearchRequests.Inc()

	results, err := s.photos.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("search photos", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []models.PhotoMetadata{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:      query,
		Transcript: transcript,
		Count:      len(results),
		Results:    results,
	})
}
