package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/station-pivot-etl/internal/domain"
	"github.com/couchcryptid/station-pivot-etl/internal/export"
	"github.com/couchcryptid/station-pivot-etl/internal/pipeline"
)

const uploadField = "archive"

// processParams are the query parameters of the process endpoints.
type processParams struct {
	MinCompleteness int `validate:"min=0,max=100"`
	Filter          bool
	Provenance      bool
	NormalizeDates  bool
	Consolidated    bool
	Variant         string `validate:"oneof=wide filtered consolidated"`
}

type tablePreview struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type stationCounts struct {
	Total    int  `json:"total"`
	Retained int  `json:"retained"`
	Removed  int  `json:"removed"`
	Filtered bool `json:"filtered"`
}

type processResponse struct {
	RunID           string                     `json:"run_id"`
	Status          string                     `json:"status"`
	Warnings        []domain.Warning           `json:"warnings"`
	InnerArchives   int                        `json:"inner_archives"`
	Files           int                        `json:"files"`
	Rows            int                        `json:"rows"`
	Dates           int                        `json:"dates"`
	Stations        stationCounts              `json:"stations"`
	Completeness    *domain.CompletenessReport `json:"completeness,omitempty"`
	Preview         *tablePreview              `json:"preview,omitempty"`
	FilteredPreview *tablePreview              `json:"filtered_preview,omitempty"`
	Artifacts       []export.Artifact          `json:"artifacts"`
}

// handleProcess runs the pipeline and returns previews, counters, and the
// spreadsheets (base64) in one JSON document.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	params, apiErr := s.parseParams(r)
	if apiErr != nil {
		s.renderError(w, r, apiErr)
		return
	}

	res, apiErr := s.run(w, r, params)
	if apiErr != nil {
		s.renderError(w, r, apiErr)
		return
	}

	render.JSON(w, r, buildResponse(res))
}

// handleDownload runs the pipeline and returns a single spreadsheet.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	params, apiErr := s.parseParams(r)
	if apiErr != nil {
		s.renderError(w, r, apiErr)
		return
	}
	switch params.Variant {
	case pipeline.ArtifactFiltered:
		params.Filter = true
	case pipeline.ArtifactConsolidated:
		params.Consolidated = true
	}

	res, apiErr := s.run(w, r, params)
	if apiErr != nil {
		s.renderError(w, r, apiErr)
		return
	}
	if res.Empty {
		e := newAPIError(http.StatusUnprocessableEntity, "EMPTY_RESULT", "the upload contains no observations")
		e.Details = res.Warnings
		s.renderError(w, r, e)
		return
	}

	artifact, ok := res.Artifact(params.Variant)
	if !ok {
		s.renderError(w, r, newAPIError(http.StatusInternalServerError, "ARTIFACT_MISSING", "requested spreadsheet was not produced"))
		return
	}

	w.Header().Set("Content-Type", artifact.MIME)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("X-Run-ID", res.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, params processParams) (*pipeline.Result, *APIError) {
	blob, apiErr := s.readUpload(w, r)
	if apiErr != nil {
		return nil, apiErr
	}

	opts := pipeline.Options{
		Provenance:         params.Provenance,
		NormalizeDates:     params.NormalizeDates,
		ExportConsolidated: params.Consolidated,
		PreviewRows:        s.defaults.PreviewRows,
	}
	if params.Filter {
		opts.MinCompleteness = pipeline.Threshold(params.MinCompleteness)
	}

	res, err := s.processor.Process(r.Context(), blob, opts)
	switch {
	case errors.Is(err, domain.ErrArchiveCorrupt):
		return nil, newAPIError(http.StatusBadRequest, "ARCHIVE_CORRUPT", err.Error())
	case errors.Is(err, domain.ErrInvalidThreshold):
		return nil, newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
	case err != nil:
		s.logger.Error("process upload", "error", err, "request_id", middleware.GetReqID(r.Context()))
		return nil, newAPIError(http.StatusInternalServerError, "PROCESSING_FAILED", "processing failed")
	}
	return res, nil
}

// parseParams reads the query string, applying server defaults.
func (s *Server) parseParams(r *http.Request) (processParams, *APIError) {
	q := r.URL.Query()
	p := processParams{
		MinCompleteness: s.defaults.MinCompleteness,
		Filter:          true,
		Provenance:      true,
		NormalizeDates:  true,
		Variant:         pipeline.ArtifactWide,
	}

	var err error
	if v := q.Get("min_completeness"); v != "" {
		if p.MinCompleteness, err = strconv.Atoi(v); err != nil {
			return p, invalidParam("min_completeness", "must be an integer")
		}
	}
	for name, dst := range map[string]*bool{
		"filter":          &p.Filter,
		"provenance":      &p.Provenance,
		"normalize_dates": &p.NormalizeDates,
		"consolidated":    &p.Consolidated,
	} {
		if v := q.Get(name); v != "" {
			if *dst, err = strconv.ParseBool(v); err != nil {
				return p, invalidParam(name, "must be a boolean")
			}
		}
	}
	if v := q.Get("variant"); v != "" {
		p.Variant = v
	}

	if err := s.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return p, invalidParam(queryName(verrs[0].Field()), fmt.Sprintf("failed %q constraint", verrs[0].Tag()))
		}
		return p, newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
	}
	return p, nil
}

// readUpload returns the archive bytes from a raw body or from the
// "archive" field of a multipart form.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, *APIError) {
	body := http.MaxBytesReader(w, r.Body, s.defaults.MaxUploadBytes)
	defer body.Close()

	var src io.Reader = body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = body
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "INVALID_UPLOAD", err.Error())
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil, newAPIError(http.StatusBadRequest, "INVALID_UPLOAD", "multipart form has no \""+uploadField+"\" field")
			}
			if err != nil {
				return nil, uploadError(err)
			}
			if part.FormName() == uploadField {
				src = part
				break
			}
		}
	}

	blob, err := io.ReadAll(src)
	if err != nil {
		return nil, uploadError(err)
	}
	if len(blob) == 0 {
		return nil, newAPIError(http.StatusBadRequest, "INVALID_UPLOAD", "upload is empty")
	}
	return blob, nil
}

func uploadError(err error) *APIError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newAPIError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
	}
	return newAPIError(http.StatusBadRequest, "INVALID_UPLOAD", err.Error())
}

func invalidParam(name, msg string) *APIError {
	e := newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", name+" "+msg)
	e.Details = map[string]string{"parameter": name}
	return e
}

func queryName(field string) string {
	switch field {
	case "MinCompleteness":
		return "min_completeness"
	case "Variant":
		return "variant"
	}
	return field
}

func buildResponse(res *pipeline.Result) processResponse {
	out := processResponse{
		RunID:         res.RunID,
		Status:        res.Summary.Outcome,
		Warnings:      res.Warnings,
		InnerArchives: res.InnerArchives,
		Files:         res.Files,
		Rows:          res.Summary.Rows,
		Dates:         res.Summary.Dates,
		Stations: stationCounts{
			Total:    res.Summary.StationsBefore,
			Retained: res.Summary.StationsRetained,
			Removed:  res.Summary.StationsRemoved,
			Filtered: res.Report != nil,
		},
		Completeness: res.Report,
		Artifacts:    res.Artifacts,
	}
	if out.Warnings == nil {
		out.Warnings = []domain.Warning{}
	}
	if out.Artifacts == nil {
		out.Artifacts = []export.Artifact{}
	}
	if !res.Empty {
		out.Preview = previewOf(res.WidePreview)
		if res.FilteredPreview != nil {
			out.FilteredPreview = previewOf(*res.FilteredPreview)
		}
	}
	return out
}

func previewOf(t domain.WideTable) *tablePreview {
	layout := time.DateOnly
	if t.HasTimeOfDay() {
		layout = time.DateTime
	}
	p := &tablePreview{Columns: t.Header(), Rows: make([][]any, t.Len())}
	for i := range p.Rows {
		row := t.Row(i)
		if d, ok := row[0].(time.Time); ok {
			row[0] = d.Format(layout)
		}
		p.Rows[i] = row
	}
	return p
}
