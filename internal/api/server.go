// Package api exposes the HTTP surface over the lifecycle manager: upload,
// the two serve routes, the landing page, and the operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/img10/internal/config"
	"github.com/dharsanguruparan/img10/internal/lifecycle"
	"github.com/dharsanguruparan/img10/internal/model"
)

const version = "1.0.0"

// transportSlack is how far past the configured cap the request body may
// grow before the transport cuts it off. Oversize uploads inside the slack
// still reach the manager so the rejection can report the observed size.
const transportSlack = 32 << 20

// Server hosts the HTTP handlers. It stitches together configuration, the
// lifecycle manager, and the middleware stack.
type Server struct {
	cfg     *config.Config
	manager *lifecycle.Manager
	log     *zap.Logger

	uploadLimiter *ipLimiter
	serveLimiter  *ipLimiter

	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, manager *lifecycle.Manager, log *zap.Logger) *Server {
	return &Server{
		cfg:           cfg,
		manager:       manager,
		log:           log,
		uploadLimiter: newIPLimiter(cfg.UploadRatePerMinute),
		serveLimiter:  newIPLimiter(cfg.ServeRatePerMinute),
	}
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/t/", s.handleThumbnail)
	mux.HandleFunc("/tasks/cleanup", s.handleCleanup)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/", s.handleRoot)
	return corsMiddleware(requestLogger(s.log, mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("addr", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		s.handleIndex(w, r)
		return
	}
	// Everything else under / is /{id}.{ext}.
	s.handleServeOriginal(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingPage.Execute(w, map[string]any{
		"MaxMiB":      s.cfg.MaxUploadBytes >> 20,
		"ExpiryHours": int(s.cfg.ExpiryWindow.Hours()),
	}); err != nil {
		s.log.Error("render landing page", zap.Error(err))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.uploadLimiter.allow(clientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+transportSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		// MaxBytesReader tripping mid-read lands here.
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	res, err := s.manager.Upload(r.Context(), data, part.Header.Get("Content-Type"))
	if err != nil {
		s.respondUploadError(w, err)
		return
	}

	base := s.baseURL(r)
	respondJSON(w, http.StatusOK, uploadResponse{
		Success:      true,
		ImageID:      res.ID,
		ImgURL:       fmt.Sprintf("%s/%s%s", base, res.ID, res.Extension),
		ThumbnailURL: fmt.Sprintf("%s/t/%s.jpg", base, res.ID),
		MIMEType:     res.MIMEType,
	})
}

func (s *Server) respondUploadError(w http.ResponseWriter, err error) {
	var tooLarge *model.PayloadTooLargeError
	switch {
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, tooLarge.Error())
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrUnsupportedFormat):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("upload failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "upload failed, try again later")
	}
}

func (s *Server) handleServeOriginal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/")
	id, ext, ok := splitName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	switch ext {
	case "jpg", "jpeg", "png":
	default:
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	s.serveArtifact(w, r, id, func(ctx context.Context, now time.Time) (*lifecycle.Artifact, error) {
		return s.manager.FetchOriginal(ctx, id, now)
	})
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/t/")
	id, ext, ok := splitName(name)
	if !ok || ext != "jpg" {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	s.serveArtifact(w, r, id, func(ctx context.Context, now time.Time) (*lifecycle.Artifact, error) {
		return s.manager.FetchThumbnail(ctx, id, now)
	})
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, id string,
	fetch func(context.Context, time.Time) (*lifecycle.Artifact, error)) {

	if !s.serveLimiter.allow(clientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	art, err := fetch(r.Context(), time.Now().UTC())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Unknown, expired, and file-missing all look the same outward.
			respondError(w, http.StatusNotFound, "image not found")
			return
		}
		s.log.Error("serve failed", zap.String("id", id), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "image unavailable")
		return
	}
	defer art.Content.Close()
	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Content-Disposition", "inline")
	http.ServeContent(w, r, "", art.ModTime, art.Content)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	removed, err := s.manager.Cleanup(r.Context(), time.Now().UTC())
	if err != nil {
		s.log.Error("cleanup failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "cleanup failed")
		return
	}
	respondJSON(w, http.StatusOK, cleanupResponse{Message: "Cleanup completed", RemovedCount: removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{
		Status:            "healthy",
		Timestamp:         time.Now().UTC(),
		Version:           version,
		DatabaseConnected: s.manager.Health(r.Context()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.log.Error("stats failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// baseURL prefers the configured public base and otherwise reconstructs it
// from the request.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// splitName separates "abc123.jpg" into id and lowercase extension.
func splitName(name string) (id, ext string, ok bool) {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 || strings.ContainsRune(name, '/') {
		return "", "", false
	}
	return name[:dot], strings.ToLower(name[dot+1:]), true
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

type uploadResponse struct {
	Success      bool   `json:"success"`
	ImageID      string `json:"image_id"`
	ImgURL       string `json:"img_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	MIMEType     string `json:"mime_type"`
}

type cleanupResponse struct {
	Message      string `json:"message"`
	RemovedCount int    `json:"removed_count"`
}

type healthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	Version           string    `json:"version"`
	DatabaseConnected bool      `json:"database_connected"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail})
}
