package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dom/accounts/internal/api/response"
	"github.com/dom/accounts/internal/logger"
)

const multipartMemory = 32 << 10

// uploads spools multipart files to disk so the blob store can read them
// by path.
type uploads struct {
	dir      string
	maxBytes int64
	log      *slog.Logger
}

// parse reads the multipart form and answers the request itself on failure.
func (u uploads) parse(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, u.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return false
		}
		response.Error(w, http.StatusBadRequest, "invalid multipart form")
		return false
	}
	return true
}

// save copies the file in field to a temp file and returns its path. A
// missing field returns an empty path.
func (u uploads) save(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	tmp, err := os.CreateTemp(u.dir, "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

func (u uploads) cleanup(r *http.Request, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			u.log.Warn("failed to remove temp file", slog.String("path", p), logger.Err(err))
		}
	}
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}
