// Package api is the HTTP edge of the conversion service. It binds uploads,
// maps domain errors to status codes, and delegates everything else to the
// orchestrator.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"pdf2md/internal/core/domain"
	"pdf2md/internal/core/services"
)

//go:embed openapi.yaml
var openapiSpec []byte

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 100 << 20

// Service is the narrow orchestrator surface the server needs.
type Service interface {
	Submit(ctx context.Context, document []byte) (services.SubmitResult, error)
	Status(ctx context.Context, id domain.TaskID) (services.StatusView, error)
	Markdown(ctx context.Context, id domain.TaskID) (string, error)
	Asset(id domain.TaskID, filename string) (string, error)
	Bundle(ctx context.Context, id domain.TaskID) (io.Reader, string, error)
}

type Server struct {
	logger    *slog.Logger
	svc       Service
	specJSON  []byte
	maxUpload int64
}

// NewServer builds the HTTP server. The embedded OpenAPI description is
// loaded and validated here so a malformed contract fails the boot, not a
// client.
func NewServer(logger *slog.Logger, svc Service) (*Server, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi description: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi description: %w", err)
	}
	specJSON, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to render openapi description: %w", err)
	}

	return &Server{logger: logger, svc: svc, specJSON: specJSON, maxUpload: maxUploadBytes}, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/markdown/{id}", s.handleMarkdown)
	mux.HandleFunc("GET /api/download/{id}", s.handleDownload)
	mux.HandleFunc("GET /assets/{task_id}/{filename}", s.handleAsset)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/openapi.json", s.handleOpenAPI)

	return mux
}

type statusResponse struct {
	TaskID        domain.TaskID     `json:"task_id"`
	Status        domain.TaskStatus `json:"status"`
	Title         string            `json:"title,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	MarkdownReady bool              `json:"markdown_ready"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "Only PDF files are accepted")
		return
	}

	document, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	result, err := s.svc.Submit(r.Context(), document)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDocument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(r.PathValue("id"))

	view, err := s.svc.Status(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		TaskID:        view.Task.ID,
		Status:        view.Task.Status,
		Title:         view.Task.Title,
		ErrorMessage:  view.Task.ErrorMessage,
		CreatedAt:     view.Task.CreatedAt,
		CompletedAt:   view.Task.CompletedAt,
		MarkdownReady: view.MarkdownReady,
	})
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(r.PathValue("id"))

	content, err := s.svc.Markdown(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(r.PathValue("id"))

	bundle, filename, err := s.svc.Bundle(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, bundle); err != nil {
		s.logger.Error("bundle streaming failed", "task_id", id, "error", err)
	}
}

var assetContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(r.PathValue("task_id"))
	filename := r.PathValue("filename")

	path, err := s.svc.Asset(id, filename)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if ct, ok := assetContentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.specJSON)
}

// writeDomainError maps domain errors onto status codes: unknown ids are
// 404, known-but-not-ready output is 400, everything else is a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusBadRequest, domain.ErrNotReady.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
