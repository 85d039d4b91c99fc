package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/JonMunkholm/completions/internal/logging"
	"github.com/JonMunkholm/completions/internal/web/templates"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temp files.
const multipartMemory = 8 << 20

// formFile returns the "file" part of a multipart upload. The body is
// capped a little above the service limit so oversized files fail fast.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize()+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, nil, fmt.Errorf("%w: exceeds %d MB", core.ErrFileTooLarge, s.service.MaxFileSize()>>20)
		}
		return nil, nil, errNoFile
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	return file, header, nil
}

// handleImport runs a workbook import. A write failure still returns the
// result, which says what was written, alongside the error.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.formFile(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	log := logging.WithFields(r.Context(), "file", header.Filename, "size", header.Size)
	log.Info("import started")

	res, err := s.service.ImportWorkbook(r.Context(), session(r), header.Filename, file)
	if err != nil && res == nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if err != nil {
		status = statusFor(err)
		log.Error("import write failed", "import_id", res.ImportID, "error", err)
	} else {
		log.Info("import finished",
			"import_id", res.ImportID,
			"test_packs", res.TestPacksCreated,
			"tags", res.TagsCreated,
			"skipped", res.RowsSkipped,
		)
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := templates.ImportSummary(res).Render(r.Context(), w); err != nil {
			log.Error("render import summary", "error", err)
		}
		return
	}
	writeJSON(w, status, res)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	file, _, err := s.formFile(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	preview, err := s.service.PreviewImport(r.Context(), session(r), file)
	respond(w, r, http.StatusOK, preview, err)
}

// handleExport downloads the filtered test packs with their tags. The
// workbook is built in memory so a failure can still be reported.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := s.service.ExportTestPacks(r.Context(), session(r), testPackFilter(r), &buf)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("export finished", "tags", n, "bytes", buf.Len())
	sendWorkbook(w, core.ExportFileName(s.service.Now()), &buf)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	if err := session(r).Check(s.service.Now()); err != nil {
		respondError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := core.WriteTemplate(&buf); err != nil {
		respondError(w, r, err)
		return
	}
	sendWorkbook(w, "completions_template.xlsx", &buf)
}

func sendWorkbook(w http.ResponseWriter, name string, body *bytes.Buffer) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", fmt.Sprint(body.Len()))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, body)
}

// Import history

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	imports, err := s.service.ListImports(r.Context(), session(r), queryInt(r, "limit", 0))
	respond(w, r, http.StatusOK, imports, err)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetImport(r.Context(), session(r), idParam(r))
	respond(w, r, http.StatusOK, rec, err)
}

func (s *Server) handleRollbackImport(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.RollbackImport(r.Context(), session(r), idParam(r))
	if err == nil {
		logging.FromContext(r.Context()).Info("import rolled back",
			"import_id", res.ImportID, "test_packs_deleted", res.TestPacksDeleted)
	}
	respond(w, r, http.StatusOK, res, err)
}
