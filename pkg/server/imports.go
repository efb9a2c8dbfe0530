package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/logflow/poflow/internal/model"
	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/ingest"
)

const defaultHistoryLimit = 50

// readUpload accepts a multipart "file" field or a raw request body.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (data []byte, filename string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, "", uploadError(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", pferrors.InvalidArgument("file", "", "no file provided")
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			return nil, "", uploadError(err)
		}
		return data, header.Filename, nil
	}

	data, err = io.ReadAll(r.Body)
	if err != nil {
		return nil, "", uploadError(err)
	}
	return data, r.URL.Query().Get("filename"), nil
}

func uploadError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return pferrors.InvalidArgument("file", tooBig.Limit, "upload exceeds the maximum size")
	}
	return pferrors.Wrap(err, pferrors.CodeInvalidArgument, "failed to read upload")
}

// formValue reads a form field, falling back to the query string.
func formValue(r *http.Request, name string) string {
	if r.MultipartForm != nil {
		if v := r.MultipartForm.Value[name]; len(v) > 0 {
			return v[0]
		}
	}
	return r.URL.Query().Get(name)
}

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	data, filename, err := s.readUpload(w, r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}

	req := ingest.ImportRequest{
		Data:      data,
		Mode:      model.ImportMode(formValue(r, "mode")),
		UserEmail: r.Header.Get(HeaderUserEmail),
		Filename:  filename,
	}
	if v := strings.TrimSpace(formValue(r, "skip_rows")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.jsonError(w, r, pferrors.InvalidArgument("skip_rows", v, "must be an integer"))
			return
		}
		req.SkipRows = n
	}
	if v := formValue(r, "filename"); v != "" {
		req.Filename = v
	}

	batchID, err := s.imports.StartImport(r.Context(), tenant, req)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"status":   model.StatusProcessing,
	})
}

func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", defaultHistoryLimit)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	list, err := s.imports.ImportHistory(r.Context(), tenant, limit)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	if list == nil {
		list = []*model.ImportJob{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	job, err := s.imports.ImportStatus(r.Context(), tenant, r.PathValue("id"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"job": job})
}

// handleImportStats reports what the batch contributed to the dataset.
func (s *Server) handleImportStats(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	batchID := r.PathValue("id")
	job, err := s.imports.ImportStatus(r.Context(), tenant, batchID)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	stats, err := s.analytics.BatchStats(r.Context(), tenant, batchID)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"job": job, "stats": stats})
}

func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	n, err := s.imports.DeleteBatch(r.Context(), tenant, r.PathValue("id"), r.Header.Get(HeaderUserEmail))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"deleted_records": n})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantFrom(r)
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	n, err := s.imports.ClearAll(r.Context(), tenant, r.Header.Get(HeaderUserEmail), r.URL.Query().Get("confirm"))
	if err != nil {
		s.jsonError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"deleted_records": n})
}
