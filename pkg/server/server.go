// Package server exposes the publishing pipeline over HTTP:
//
//	GET  /api/health -> {"status":"healthy","service":"...","version":"..."}
//	POST /api/upload -> multipart "photo" (+ optional test_mode=true)
//
// Every upload is stored in its own directory so concurrent uploads never
// see each other's images.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/notepress/pkg/logging"
	"github.com/entrhq/notepress/pkg/security/workspace"
)

var log = logging.Component("server")

const (
	// DefaultMaxUploadBytes bounds a single upload request.
	DefaultMaxUploadBytes = 16 << 20

	// ServiceName is reported by the health endpoint.
	ServiceName = "Notepress Backend"
)

// AllowedExtensions lists the accepted photo extensions.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif"}

// Pipeline publishes the images found in dir and returns a short
// human-readable outcome.
type Pipeline func(ctx context.Context, dir string, testMode bool) (string, error)

// Config holds the HTTP layer settings.
type Config struct {
	// AccessCode, when set, must be presented as "Authorization: Bearer <code>".
	AccessCode string

	// UploadDir is the parent of the per-upload directories.
	UploadDir      string
	MaxUploadBytes int64
	Version        string

	// KeepUploads leaves upload directories on disk after processing.
	KeepUploads bool
}

// Server handles the upload API.
type Server struct {
	cfg      Config
	pipeline Pipeline
	handler  http.Handler
	guard    *workspace.Guard
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Details  string `json:"details,omitempty"`
	TestMode bool   `json:"test_mode"`
}

type errorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// New builds a server. An empty UploadDir defaults to a directory under
// the system temp dir.
func New(cfg Config, pipeline Pipeline) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "notepress-uploads")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	guard, err := workspace.NewGuard(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	if cfg.AccessCode == "" {
		log.Warnf("no access code configured, the upload API is unprotected")
	}

	s := &Server{cfg: cfg, pipeline: pipeline, guard: guard}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("POST /api/upload", s.requireAccessCode(http.HandlerFunc(s.handleUpload)))
	s.handler = WithCORS(mux)
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file part"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file part"})
		return
	}
	defer file.Close()

	name := sanitizeFilename(header.Filename)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No selected file"})
		return
	}
	if !allowedFile(name) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid file type. Allowed: PNG, JPG, JPEG, GIF"})
		return
	}
	testMode := strings.EqualFold(r.FormValue("test_mode"), "true")

	dir := filepath.Join(s.cfg.UploadDir, uuid.NewString())
	if err := s.save(dir, name, file); err != nil {
		log.Errorf("save upload: %v", err)
		writeJSON(w, http.StatusInternalServerError, failure(err))
		return
	}
	if !s.cfg.KeepUploads {
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warnf("remove %s: %v", dir, err)
			}
		}()
	}

	log.Infof("processing %s (test mode: %t) in %s", name, testMode, dir)
	details, err := s.pipeline(r.Context(), dir, testMode)
	if err != nil {
		log.Errorf("processing %s failed: %v", name, err)
		writeJSON(w, http.StatusInternalServerError, failure(err))
		return
	}
	log.Infof("processing %s completed", name)
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		Message:  "Photo uploaded and processed successfully!",
		Details:  details,
		TestMode: testMode,
	})
}

func (s *Server) save(dir, name string, src io.Reader) error {
	target := filepath.Join(dir, name)
	if err := s.guard.Validate(target); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write upload file: %w", err)
	}
	return dst.Close()
}

func failure(err error) errorResponse {
	ok := false
	return errorResponse{Success: &ok, Error: err.Error()}
}

// sanitizeFilename keeps the base name and drops path separators and
// leading dots.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	if name == "" || name == "/" {
		return ""
	}
	return name
}

func allowedFile(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
