package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/c360studio/visionvoice/caption"
	"github.com/c360studio/visionvoice/describe"
)

// allowedExtensions are the upload file types accepted by name.
var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
}

const formField = "image"

type healthResponse struct {
	Status      string  `json:"status"`
	ModelLoaded bool    `json:"model_loaded"`
	ModelError  *string `json:"model_error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: HealthStatus}
	if s.readiness != nil {
		checked, err := s.readiness.Status()
		resp.ModelLoaded = checked && err == nil
		if err != nil {
			msg := err.Error()
			resp.ModelError = &msg
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDescribeImage(w http.ResponseWriter, r *http.Request) {
	// A misconfigured captioner is reported before the upload is read
	if s.readiness != nil {
		if checked, err := s.readiness.Status(); checked && err != nil {
			s.writeDescribeError(w, r, err)
			return
		}
	}

	if r.ContentLength > s.cfg.MaxUploadBytes {
		s.writeTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeTooLarge(w)
			return
		}
		writeError(w, http.StatusBadRequest, "missing_image",
			"No image file found in request. The file field must be named 'image'.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(formField)
	if err != nil {
		// A file part without a filename arrives as a plain form value
		if _, ok := r.MultipartForm.Value[formField]; ok {
			writeError(w, http.StatusBadRequest, "empty_filename", "Empty filename. Please select a valid image.")
			return
		}
		writeError(w, http.StatusBadRequest, "missing_image",
			"No image file found in request. The file field must be named 'image'.")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "empty_filename", "Empty filename. Please select a valid image.")
		return
	}

	ext := fileExtension(header.Filename)
	if !allowedExtensions[ext] {
		writeError(w, http.StatusBadRequest, "unsupported_type",
			fmt.Sprintf("Unsupported file type '%s'. Please upload a PNG, JPG, or WEBP image.", ext))
		return
	}

	img, format, err := image.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_image",
			fmt.Sprintf("Could not read the uploaded image: %v", err))
		return
	}
	b := img.Bounds()
	s.logger.Debug("Image received",
		"request_id", describe.RequestIDFrom(r.Context()),
		"format", format,
		"width", b.Dx(),
		"height", b.Dy())

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.describer.Describe(ctx, img)
	if err != nil {
		s.writeDescribeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, "image_too_large",
		fmt.Sprintf("Image is larger than %d bytes.", s.cfg.MaxUploadBytes))
}

// writeDescribeError maps a pipeline failure to a status and a stable code.
func (s *Server) writeDescribeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := caption.KindOf(err)
	s.logger.Warn("Describe request failed",
		"request_id", describe.RequestIDFrom(r.Context()),
		"kind", kind,
		"error", err)

	switch kind {
	case caption.KindConfiguration:
		writeError(w, http.StatusInternalServerError, "setup_error",
			fmt.Sprintf("Captioning backend is not available: %v", err))
	case caption.KindAuthentication:
		writeError(w, http.StatusBadGateway, "upstream_auth",
			"The captioning service rejected our credentials.")
	case caption.KindUpstream:
		writeError(w, http.StatusBadGateway, "upstream_error",
			fmt.Sprintf("The captioning service failed: %v", err))
	case caption.KindRetriesExhausted, caption.KindTransient:
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.RetryAfter.Seconds())))
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable",
			"The captioning service is still starting up. Please try again shortly.")
	case caption.KindCanceled:
		writeError(w, http.StatusGatewayTimeout, "timeout", "The request took too long and was cancelled.")
	default:
		writeError(w, http.StatusInternalServerError, "processing_failed",
			fmt.Sprintf("Processing failed: %v", err))
	}
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		writeError(w, http.StatusNotFound, "not_found", "Audio is disabled.")
		return
	}

	path, err := s.audio.Path(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Audio file not found.")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "Audio file not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "audio_error", "Could not read audio file.")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", "Audio file not found.")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "Request history is not enabled.")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("Listing history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "Could not read request history.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func fileExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
