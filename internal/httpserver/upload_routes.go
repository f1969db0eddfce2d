package httpserver

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rtchat/internal/config"
)

type uploadResponse struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// UploadRoutes returns a sub-router mounted at /api/uploads.
//
// POST /           accepts multipart/form-data with a "file" field and stores
// it under a random name; the response carries the URL to pass as fileUrl on
// a message. GET /{filename} serves stored files.
func UploadRoutes(cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	maxBytes := cfg.MaxUploadMB << 20

	r.Post("/", func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, maxBytes)
		if err := req.ParseMultipartForm(maxBytes); err != nil {
			http.Error(w, "file too large or malformed form", http.StatusRequestEntityTooLarge)
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		ext := filepath.Ext(header.Filename)
		stored := uuid.NewString() + ext
		destPath := filepath.Join(cfg.UploadDir, stored)

		out, err := os.Create(destPath)
		if err != nil {
			http.Error(w, "could not create file", http.StatusInternalServerError)
			return
		}
		defer out.Close()

		size, err := io.Copy(out, file)
		if err != nil {
			os.Remove(destPath)
			http.Error(w, "could not save file", http.StatusInternalServerError)
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		writeJSON(w, http.StatusCreated, uploadResponse{
			URL:      "/api/uploads/" + stored,
			FileName: header.Filename,
			MimeType: mimeType,
			Size:     size,
		})
	})

	r.Get("/{filename}", func(w http.ResponseWriter, req *http.Request) {
		filename := chi.URLParam(req, "filename")
		// Reject path traversal.
		if filename == "" || filepath.Base(filename) != filename {
			http.Error(w, "invalid filename", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, req, filepath.Join(cfg.UploadDir, filename))
	})

	return r
}
