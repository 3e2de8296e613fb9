package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/internal/pipeline"
	"github.com/ajitpratap0/prepdash/pkg/codec"
	"github.com/ajitpratap0/prepdash/pkg/compression"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/export"
	"github.com/ajitpratap0/prepdash/pkg/inspect"
	"github.com/ajitpratap0/prepdash/pkg/json"
	"github.com/ajitpratap0/prepdash/pkg/transform"
)

const (
	defaultUploadName = "upload.csv"
	defaultBins       = 30
)

func (s *Server) handleSteps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"steps": s.registry.Steps()})
}

type sessionResponse struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Rows     int    `json:"rows"`
	Columns  int    `json:"columns"`
	Baseline string `json:"baseline_version"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	working, baseline, err := s.loadSources(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.ctrl.NewSession(ctx, working, baseline)
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.Add(sess)

	ds, version, err := s.ctrl.Dataset(ctx, sess, pipeline.Working)
	if err != nil {
		writeError(w, err)
		return
	}
	_, baseVersion, err := s.ctrl.Dataset(ctx, sess, pipeline.Baseline)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, cols := ds.Shape()
	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:       sess.ID,
		Version:  version,
		Rows:     rows,
		Columns:  cols,
		Baseline: baseVersion,
	})
}

// loadSources reads the configured default datasets. With no working
// source a session starts empty and waits for an upload.
func (s *Server) loadSources(ctx context.Context) (working, baseline *dataset.Dataset, err error) {
	src := s.cfg.Sources
	if s.loader == nil || src.Working == "" {
		return dataset.MustNew(), nil, nil
	}
	if working, err = s.loader.Load(ctx, src.Working); err != nil {
		return nil, nil, err
	}
	if b := src.BaselineSource(); b != src.Working {
		if baseline, err = s.loader.Load(ctx, b); err != nil {
			return nil, nil, err
		}
	}
	return working, baseline, nil
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Remove(r.Context(), sessionFrom(r).ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type outcomeResponse struct {
	pipeline.Outcome
	ErrorType errors.ErrorType `json:"error_type,omitempty"`
}

func writeOutcome(w http.ResponseWriter, out pipeline.Outcome) {
	resp := outcomeResponse{Outcome: out}
	status := http.StatusOK
	if out.Err != nil {
		resp.ErrorType = errors.TypeOf(out.Err)
		status = statusFor(out.Err)
	}
	writeJSON(w, status, resp)
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Contents string `json:"contents"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)

	filename, content, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorStatus(w, http.StatusRequestEntityTooLarge,
				errors.Newf(errors.ErrorTypeValidation, "upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeOutcome(w, pipeline.Outcome{Step: "upload", Message: pipeline.UploadErrorMessage, Err: err})
		return
	}
	writeOutcome(w, s.ctrl.Upload(r.Context(), sess, filename, content))
}

// readUpload accepts a multipart "file" field, a JSON body carrying a data
// URL, or the raw file as the request body.
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		f, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, errors.Wrap(err, errors.ErrorTypeParse, "multipart upload has no file field")
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return "", nil, err
		}
		return header.Filename, content, nil
	case "application/json":
		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, errors.Wrap(err, errors.ErrorTypeParse, "upload body is not valid JSON")
		}
		content, err := codec.DecodeDataURL(req.Contents)
		if err != nil {
			return "", nil, err
		}
		if req.Filename == "" {
			req.Filename = defaultUploadName
		}
		return req.Filename, content, nil
	default:
		content, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, err
		}
		name := r.URL.Query().Get("filename")
		if name == "" {
			name = defaultUploadName
		}
		return name, content, nil
	}
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	which, err := pipeline.ParseWhich(chi.URLParam(r, "which"))
	if err != nil {
		writeError(w, err)
		return
	}
	ds, version, err := s.ctrl.Dataset(r.Context(), sessionFrom(r), which)
	if err != nil {
		writeError(w, err)
		return
	}
	etag := strconv.Quote(version)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := codec.EncodeSplit(w, ds); err != nil {
		s.logger.Error("failed to encode dataset", zap.String("session_id", sessionFrom(r).ID), zap.Error(err))
	}
}

type overviewResponse struct {
	*inspect.Overview
	Summary string `json:"summary"`
	Version string `json:"version"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ds, version, err := s.dataset(r, pipeline.Working)
	if err != nil {
		writeError(w, err)
		return
	}
	o := inspect.NewOverview(ds)
	writeJSON(w, http.StatusOK, overviewResponse{Overview: o, Summary: o.Summary(), Version: version})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	ds, version, err := s.dataset(r, pipeline.Working)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"columns": inspect.Describe(ds),
	})
}

type univariateResponse struct {
	*inspect.ColumnMetadata
	Histogram []inspect.Bin `json:"histogram,omitempty"`
}

// handleUnivariate describes one baseline column; numeric columns also get
// a histogram with ?bins= buckets.
func (s *Server) handleUnivariate(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.dataset(r, pipeline.Baseline)
	if err != nil {
		writeError(w, err)
		return
	}
	column := r.URL.Query().Get("column")
	meta, err := inspect.Univariate(ds, column)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := univariateResponse{ColumnMetadata: meta}
	if meta.Type.IsNumeric() {
		bins := defaultBins
		if raw := r.URL.Query().Get("bins"); raw != "" {
			if bins, err = strconv.Atoi(raw); err != nil {
				writeError(w, errors.Newf(errors.ErrorTypeValidation, "bins must be an integer, got %q", raw))
				return
			}
		}
		if resp.Histogram, err = inspect.Histogram(ds, column, bins); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBivariate(w http.ResponseWriter, r *http.Request) {
	ds, _, err := s.dataset(r, pipeline.Baseline)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	corr, err := inspect.Bivariate(ds, q.Get("x"), q.Get("y"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, corr)
}

// dataset reads the dataset named by ?dataset=, defaulting to def.
func (s *Server) dataset(r *http.Request, def pipeline.Which) (*dataset.Dataset, string, error) {
	which := def
	if name := r.URL.Query().Get("dataset"); name != "" {
		var err error
		if which, err = pipeline.ParseWhich(name); err != nil {
			return nil, "", err
		}
	}
	return s.ctrl.Dataset(r.Context(), sessionFrom(r), which)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "step")
	params := transform.Params{}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.Wrap(err, errors.ErrorTypeParse, "failed to read step parameters"))
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeError(w, errors.Wrap(err, errors.ErrorTypeParse, "step parameters must be a JSON object"))
			return
		}
	}

	step, err := s.registry.Build(name, params)
	if err != nil {
		writeOutcome(w, pipeline.Outcome{Step: name, Message: errors.UserMessage(err), Err: err})
		return
	}
	writeOutcome(w, s.ctrl.Apply(r.Context(), sessionFrom(r), step))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	opts, err := s.exportOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := s.ctrl.Export(r.Context(), sessionFrom(r), &buf, opts); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(opts))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(opts)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// exportOptions starts from the configured defaults and applies ?format=
// and ?compression=.
func (s *Server) exportOptions(r *http.Request) (export.Options, error) {
	opts, err := s.cfg.ExportOptions()
	if err != nil {
		return opts, err
	}
	q := r.URL.Query()
	if f := q.Get("format"); f != "" {
		if opts.Format, err = export.ParseFormat(f); err != nil {
			return opts, err
		}
	}
	if c := q.Get("compression"); c != "" {
		if opts.Compression, err = compression.ParseAlgorithm(c); err != nil {
			return opts, errors.Wrap(err, errors.ErrorTypeValidation, "unsupported export compression").
				WithDetail("compression", strings.ToLower(c))
		}
	}
	return opts, nil
}
