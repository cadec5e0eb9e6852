package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/models"
	"github.com/hyperjump/utsushi/internal/search"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/internal/tasks"
)

func (s *Server) handleTextSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("text search request", zap.String("text", query.Text), zap.Int("page", query.Page))
	resp, err := s.engine.TextSearch(r.Context(), &query)
	s.respondSearch(w, resp, err)
}

func (s *Server) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("image search request", zap.String("image_path", query.ImagePath), zap.Int("page", query.Page))
	resp, err := s.engine.ImageSearch(r.Context(), &query)
	s.respondSearch(w, resp, err)
}

func (s *Server) handleNameSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	resp, err := s.engine.NameSearch(r.Context(), q, limit)
	if errors.Is(err, search.ErrNameSearchDisabled) {
		s.respondError(w, http.StatusNotImplemented, err.Error())
		return
	}
	s.respondSearch(w, resp, err)
}

func (s *Server) respondSearch(w http.ResponseWriter, resp *models.SearchResponse, err error) {
	if errors.Is(err, models.ErrInvalidQuery) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.storage.ListFolders(r.Context())
	if err != nil {
		s.logger.Error("list folders failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if folders == nil {
		folders = []*models.IndexedFolder{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

type addFolderRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var req addFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}

	s.logger.Debug("add folder request", zap.String("path", abs))
	id, err := s.tasks.Start("index", func(ctx context.Context, rep *tasks.Reporter) error {
		_, err := s.refresh.AddFolder(ctx, abs, rep)
		return err
	})
	if errors.Is(err, tasks.ErrBusy) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"path": abs, "task_id": id, "status": "indexing"})
}

type refreshRequest struct {
	Folders []string `json:"folders,omitempty"`
}

func (s *Server) handleStartRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	folders := req.Folders
	id, err := s.tasks.Start("refresh", func(ctx context.Context, rep *tasks.Reporter) error {
		if len(folders) == 0 {
			_, err := s.refresh.RefreshAll(ctx, rep)
			return err
		}
		_, err := s.refresh.Refresh(ctx, folders, rep)
		return err
	})
	if errors.Is(err, tasks.ErrBusy) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "running"})
}

func (s *Server) handleCancelRefresh(w http.ResponseWriter, r *http.Request) {
	canceled := s.tasks.Cancel()
	s.respondJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

func (s *Server) handleCurrentTask(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.tasks.Status())
}

type mediaResponse struct {
	*models.MediaFile
	Frames []*models.VideoFrame `json:"frames,omitempty"`
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	mf, err := s.storage.GetMediaFile(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "media file not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := mediaResponse{MediaFile: mf}
	if mf.FileType == models.FileTypeVideo {
		frames, err := s.storage.GetVideoFramesByMediaFileID(r.Context(), id)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Frames = frames
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := BuildStatus(r.Context(), s.storage, s.vectors, s.tasks, s.config)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
