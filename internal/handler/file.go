package handler

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/pairchat/internal/fileserver"
)

// FileHandler serves uploads through the embedded file service. Uploads go
// through /upload first; the returned URL is then attached to a message.
type FileHandler struct {
	fileSvc       *fileserver.Service
	maxUploadSize int64
}

func NewFileHandler(fileSvc *fileserver.Service, maxUploadSize int64) *FileHandler {
	return &FileHandler{fileSvc: fileSvc, maxUploadSize: maxUploadSize}
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	h.fileSvc.HandleUpload(w, r)
}

func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "filename"))
	h.fileSvc.Serve(w, r, filename)
}
