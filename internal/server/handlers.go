package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/meishi/internal/cardstore"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/loader"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"go.uber.org/zap"
)

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	var loadErr *loader.LoadError
	switch {
	case errors.Is(err, loader.ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, cardstore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &loadErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleIndexCard(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	record, err := indexer.DecodeRecordJSON(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid card record")
		return
	}
	s.logger.Debug("index card request", zap.String("name", record.ExtractedInfo.PrimaryInfo.Name.Value))
	identity, err := s.indexer.IndexCard(r.Context(), record)
	if err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"identity": identity, "status": "indexed"})
}

type indexImageRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleIndexImage(w http.ResponseWriter, r *http.Request) {
	var req indexImageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		s.respondError(w, http.StatusBadRequest, "source is required")
		return
	}
	s.logger.Debug("index image request", zap.String("source", req.Source))
	identity, err := s.indexer.IndexImage(r.Context(), req.Source)
	if err != nil {
		s.logger.Error("image indexing failed", zap.String("source", req.Source), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"identity": identity, "status": "indexed"})
}

// cardIDParam returns the decoded {id} path parameter. chi matches on the raw path
// when the request carries escapes such as %2F, leaving the parameter escaped.
func cardIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id, err := cardIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid card identity")
		return
	}
	card, err := s.engine.FindCard(r.Context(), id)
	if err != nil {
		if errors.Is(err, cardstore.ErrMalformedCard) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("get card failed", zap.String("identity", id), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if card.Status == models.CardNotFound {
		s.respondError(w, http.StatusNotFound, "card not found")
		return
	}
	s.respondJSON(w, http.StatusOK, card)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := cardIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid card identity")
		return
	}
	s.logger.Debug("delete card request", zap.String("identity", id))
	if err := s.indexer.DeleteCard(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"identity": id, "status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(query.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var query models.LookupQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(query.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}
	s.logger.Debug("lookup request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Lookup(r.Context(), &query)
	if err != nil {
		s.logger.Error("lookup failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	st := s.config.Storage
	if n, err := storage.DiskUsageBytes(st.DatabasePath, st.BleveIndexPath, st.VectorIndexPath); err == nil {
		stats.DiskUsageBytes = n
	}
	configInfo := map[string]interface{}{
		"embedding_provider":   s.config.Embedding.Provider,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"vector_index_type":    s.config.Vector.IndexType,
		"extraction_provider":  s.config.Extraction.Provider,
		"underfill_retries":    s.config.Search.UnderfillRetries,
		"database_path":        st.DatabasePath,
		"bleve_index_path":     st.BleveIndexPath,
		"vector_index_path":    st.VectorIndexPath,
	}
	if s.inbox != nil {
		configInfo["inbox_directories"] = s.inbox.Directories()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"index":  stats,
		"config": configInfo,
	})
}

func (s *Server) handleInboxList(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.inbox.Directories()})
}

type inboxRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleInboxAdd(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	var req inboxRequest
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
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("inbox add request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.inbox.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("inbox add failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInbox()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleInboxRemove(w http.ResponseWriter, r *http.Request) {
	if s.inbox == nil {
		s.respondError(w, http.StatusNotImplemented, "inbox not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body inboxRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("inbox remove request", zap.String("path", abs))
	if err := s.inbox.RemoveDirectory(abs); err != nil {
		s.logger.Error("inbox remove failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInbox()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistInbox writes the current inbox directories back to the config file.
func (s *Server) persistInbox() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.inbox.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist inbox config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
