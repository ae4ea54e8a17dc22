package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bookvoice/internal/parser"
	"github.com/dgallion1/bookvoice/internal/pipeline"
)

type loadResponse struct {
	Success    bool   `json:"success"`
	Filename   string `json:"filename"`
	TotalPages int    `json:"total_pages"`
	SessionID  string `json:"session_id"`
}

type bookInfo struct {
	Filename string  `json:"filename"`
	Size     int64   `json:"size"`
	SizeKB   float64 `json:"size_kb"`
	Type     string  `json:"type"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		jsonError(w, "No file selected", http.StatusBadRequest)
		return
	}
	if header.Size > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, "Invalid file type. Supported: "+supportedList(), http.StatusBadRequest)
		return
	}

	path, err := s.saveUpload(file, filename)
	if err != nil {
		s.log.Error("save upload", "filename", filename, "error", err)
		jsonError(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	s.loadInto(w, r, path, filename)
}

// saveUpload writes the upload into the upload directory, replacing any book
// with the same name.
func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.cfg.UploadDir, filename)
	tmp, err := os.CreateTemp(s.cfg.UploadDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(src, s.cfg.MaxUploadBytes)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename upload: %w", err)
	}
	return path, nil
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books := []bookInfo{}

	entries, err := os.ReadDir(s.cfg.UploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Error("list books", "dir", s.cfg.UploadDir, "error", err)
		jsonError(w, "failed to list books", http.StatusInternalServerError)
		return
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !parser.IsSupportedExtension(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		books = append(books, bookInfo{
			Filename: e.Name(),
			Size:     info.Size(),
			SizeKB:   math.Round(float64(info.Size())/1024*100) / 100,
			Type:     strings.ToUpper(strings.TrimPrefix(filepath.Ext(e.Name()), ".")),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"books": books})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	filename := sanitizeFilename(chi.URLParam(r, "filename"))
	path := filepath.Join(s.cfg.UploadDir, filename)

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			jsonError(w, "Book not found", http.StatusNotFound)
			return
		}
		s.log.Error("delete book", "filename", filename, "error", err)
		jsonError(w, "failed to delete book", http.StatusInternalServerError)
		return
	}

	s.log.Info("book deleted", "filename", filename)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": fmt.Sprintf("Deleted %s", filename),
	})
}

func (s *Server) handleLoadBook(w http.ResponseWriter, r *http.Request) {
	filename := sanitizeFilename(chi.URLParam(r, "filename"))
	path := filepath.Join(s.cfg.UploadDir, filename)

	if _, err := os.Stat(path); err != nil {
		jsonError(w, "Book not found", http.StatusNotFound)
		return
	}

	s.loadInto(w, r, path, filename)
}

// loadInto loads path into the request's session and writes the load response.
func (s *Server) loadInto(w http.ResponseWriter, r *http.Request, path, filename string) {
	sess := s.sessions.GetOrCreate(sessionID(r))

	total, err := sess.Coordinator.Load(r.Context(), path)
	if err != nil {
		var unsupported *parser.UnsupportedFormatError
		if errors.As(err, &unsupported) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("load book", "filename", filename, "session", sess.ID, "error", err)
		jsonError(w, "failed to load book: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loadResponse{
		Success:    true,
		Filename:   filename,
		TotalPages: total,
		SessionID:  sess.ID,
	})
}

// sessionID reads the caller's session from the X-Session-ID header or the
// session query parameter, defaulting to the shared session.
func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Session-ID")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("session")); id != "" {
		return id
	}
	return pipeline.DefaultSession
}

func supportedList() string {
	exts := make([]string, 0, len(parser.SupportedExtensions))
	for ext := range parser.SupportedExtensions {
		exts = append(exts, strings.TrimPrefix(ext, "."))
	}
	slices.Sort(exts)
	return strings.Join(exts, ", ")
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// sanitizeFilename reduces a client-supplied name to a safe base name.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.Join(strings.Fields(name), "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "unnamed"
	}
	return name
}
