// Package pipeline runs preprocessing steps against session datasets.
//
// The Controller owns the read-validate-apply-commit cycle: it reads the
// session's committed working dataset, applies one step, and commits the
// result only when the step succeeds. Step failures, including panics, are
// turned into an Outcome carrying a user-facing message; the committed
// dataset is never partially updated.
//
// # Basic Usage
//
//	ctrl := pipeline.NewController(store.NewMemoryStore(), logger)
//	sess, err := ctrl.NewSession(ctx, working, nil)
//
//	step, err := registry.Build("missing", transform.Params{"column": "age", "method": "median"})
//	out := ctrl.Apply(ctx, sess, step)
//	fmt.Println(out.Message) // Filled missing age with median.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/pkg/codec"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/export"
	"github.com/ajitpratap0/prepdash/pkg/logger"
	"github.com/ajitpratap0/prepdash/pkg/metrics"
	"github.com/ajitpratap0/prepdash/pkg/observability"
	"github.com/ajitpratap0/prepdash/pkg/store"
	"github.com/ajitpratap0/prepdash/pkg/transform"
)

// UploadErrorMessage is shown when an upload cannot be decoded.
const UploadErrorMessage = "Error: could not read the uploaded file as CSV."

// Which selects one of a session's datasets.
type Which string

const (
	Working  Which = "working"
	Baseline Which = "baseline"
)

// ParseWhich resolves a dataset selector; the empty string means Working.
func ParseWhich(name string) (Which, error) {
	switch Which(name) {
	case "", Working:
		return Working, nil
	case Baseline:
		return Baseline, nil
	}
	return "", errors.Newf(errors.ErrorTypeValidation, "unknown dataset %q: use working or baseline", name)
}

// Outcome reports a single Controller operation.
type Outcome struct {
	Step      string `json:"step"`
	Committed bool   `json:"committed"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
	Artifact  any    `json:"artifact,omitempty"`
	// Version fingerprints the working dataset after the operation.
	Version string `json:"version,omitempty"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Controller applies steps and uploads to sessions backed by a store.
type Controller struct {
	store  store.Store
	logger *zap.Logger
}

// NewController creates a controller over st.
func NewController(st store.Store, logger *zap.Logger) *Controller {
	return &Controller{store: st, logger: logger.With(zap.String("component", "pipeline"))}
}

// NewSession stores working and baseline under fresh handles. A nil
// baseline starts as a copy of working.
func (c *Controller) NewSession(ctx context.Context, working, baseline *dataset.Dataset) (*Session, error) {
	if working == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "a session needs a working dataset")
	}
	if baseline == nil {
		baseline = working
	}
	wh, err := c.store.Create(ctx, working)
	if err != nil {
		return nil, err
	}
	bh, err := c.store.Create(ctx, baseline)
	if err != nil {
		_ = c.store.Delete(ctx, wh)
		return nil, err
	}
	s := newSession(wh, bh)
	metrics.SessionsActive.Inc()

	rows, cols := working.Shape()
	c.logger.Info("session started",
		zap.String("session_id", s.ID),
		zap.Int("rows", rows),
		zap.Int("columns", cols))
	return s, nil
}

// keepAlive refreshes the expiry of both session datasets. The baseline is
// only committed on upload, so reads and steps must keep it alive too.
func (c *Controller) keepAlive(ctx context.Context, s *Session) {
	if err := c.store.Touch(ctx, s.working, s.baseline); err != nil {
		c.logger.Warn("failed to refresh session datasets", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (c *Controller) closedError(s *Session) error {
	return errors.Newf(errors.ErrorTypeNotFound, "session %s is closed", s.ID).WithDetail("session_id", s.ID)
}

// Apply runs step against the session's working dataset and commits the
// result. Steps that only produce an artifact succeed without committing.
func (c *Controller) Apply(ctx context.Context, s *Session, step transform.Step) Outcome {
	name := step.Name()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ctx = logger.ContextWithStep(logger.ContextWithSession(ctx, s.ID), name)
	ctx, span := observability.StartSpan(ctx, "step."+name,
		attribute.String("session.id", s.ID),
		attribute.String("step.name", name))
	timer := metrics.NewTimer(name)
	log := c.logger.With(zap.String("session_id", s.ID), zap.String("step", name))

	out := c.apply(ctx, s, step)

	elapsed := timer.ObserveStep(out.Err)
	span.SetAttributes(attribute.Bool("step.committed", out.Committed), attribute.Int("dataset.rows", out.Rows))
	observability.EndSpan(span, out.Err)

	if out.Err != nil {
		log.Warn("step failed",
			zap.String("params", transform.Describe(step)),
			zap.Duration("duration", elapsed),
			zap.Error(out.Err))
		return out
	}
	log.Info("step applied",
		zap.String("params", transform.Describe(step)),
		zap.Bool("committed", out.Committed),
		zap.Int("rows", out.Rows),
		zap.Int("columns", out.Columns),
		zap.Duration("duration", elapsed))
	return out
}

func (c *Controller) apply(ctx context.Context, s *Session, step transform.Step) Outcome {
	out := Outcome{Step: step.Name()}
	fail := func(err error) Outcome {
		out.Err = err
		out.Message = errors.UserMessage(err)
		return out
	}
	if s.closed {
		return fail(c.closedError(s))
	}
	c.keepAlive(ctx, s)

	current, err := c.store.Current(ctx, s.working)
	if err != nil {
		return fail(err)
	}
	out.Rows, out.Columns = current.Shape()

	result, err := run(ctx, step, current)
	if err != nil {
		return fail(err)
	}

	next := current
	if result.Dataset != nil {
		if err := c.store.Commit(ctx, s.working, result.Dataset); err != nil {
			return fail(err)
		}
		next = result.Dataset
		out.Committed = true
		s.steps++
		metrics.DatasetRows.Observe(float64(next.NumRows()))
	}

	out.Rows, out.Columns = next.Shape()
	out.Message = result.Message
	out.Artifact = result.Artifact
	if out.Version, err = Fingerprint(next); err != nil {
		c.logger.Warn("failed to fingerprint dataset", zap.String("session_id", s.ID), zap.Error(err))
	}
	return out
}

// run validates and applies step, converting a panic into an internal error.
func run(ctx context.Context, step transform.Step, ds *dataset.Dataset) (result *transform.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeInternal, "step %s failed unexpectedly: %v", step.Name(), r).
				WithDetail("stack", string(debug.Stack()))
		}
	}()
	if err := step.Validate(ds); err != nil {
		return nil, err
	}
	result, err = step.Apply(ctx, ds)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.Newf(errors.ErrorTypeInternal, "step %s returned no result", step.Name())
	}
	return result, nil
}

// Run applies steps in order and stops at the first failure. The returned
// outcomes include the failed one.
func (c *Controller) Run(ctx context.Context, s *Session, steps []transform.Step) []Outcome {
	outcomes := make([]Outcome, 0, len(steps))
	for _, step := range steps {
		out := c.Apply(ctx, s, step)
		outcomes = append(outcomes, out)
		if !out.OK() {
			break
		}
	}
	return outcomes
}

// Upload decodes CSV content and makes it both the working and the baseline
// dataset. On failure the session keeps its current datasets.
func (c *Controller) Upload(ctx context.Context, s *Session, filename string, content []byte) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ctx, span := observability.StartSpan(logger.ContextWithSession(ctx, s.ID), "upload",
		attribute.String("session.id", s.ID),
		attribute.String("upload.filename", filename),
		attribute.Int("upload.bytes", len(content)))
	out := c.upload(ctx, s, filename, content)
	observability.EndSpan(span, out.Err)
	metrics.UploadsTotal.WithLabelValues(metrics.Status(out.Err)).Inc()

	log := c.logger.With(zap.String("session_id", s.ID), zap.String("filename", filename))
	if out.Err != nil {
		log.Warn("upload rejected", zap.Error(out.Err))
	} else {
		log.Info("upload accepted", zap.Int("rows", out.Rows), zap.Int("columns", out.Columns))
	}
	return out
}

func (c *Controller) upload(ctx context.Context, s *Session, filename string, content []byte) Outcome {
	out := Outcome{Step: "upload"}
	if s.closed {
		out.Err = c.closedError(s)
		out.Message = errors.UserMessage(out.Err)
		return out
	}
	c.keepAlive(ctx, s)

	ds, err := codec.DecodeCSV(bytes.NewReader(content))
	if err != nil {
		out.Err = err
		out.Message = UploadErrorMessage
		return out
	}
	if err := c.store.Commit(ctx, s.working, ds); err != nil {
		out.Err = err
		out.Message = errors.UserMessage(err)
		return out
	}
	// The working handle already holds the upload; a failed baseline commit
	// is reported but not rolled back.
	if err := c.store.Commit(ctx, s.baseline, ds); err != nil {
		out.Err = err
		out.Message = errors.UserMessage(err)
		return out
	}
	s.steps = 0

	out.Committed = true
	out.Rows, out.Columns = ds.Shape()
	out.Message = fmt.Sprintf("Uploaded file: %s | Shape: %d rows, %d columns", filename, out.Rows, out.Columns)
	out.Version, _ = Fingerprint(ds)
	return out
}

// Dataset returns the committed dataset selected by which, with its version.
func (c *Controller) Dataset(ctx context.Context, s *Session, which Which) (*dataset.Dataset, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.closed {
		return nil, "", c.closedError(s)
	}
	c.keepAlive(ctx, s)

	h := s.working
	if which == Baseline {
		h = s.baseline
	}
	ds, err := c.store.Current(ctx, h)
	if err != nil {
		return nil, "", err
	}
	version, err := Fingerprint(ds)
	if err != nil {
		return nil, "", err
	}
	return ds, version, nil
}

// Working returns the committed working dataset.
func (c *Controller) Working(ctx context.Context, s *Session) (*dataset.Dataset, error) {
	ds, _, err := c.Dataset(ctx, s, Working)
	return ds, err
}

// Baseline returns the analysis baseline dataset.
func (c *Controller) Baseline(ctx context.Context, s *Session) (*dataset.Dataset, error) {
	ds, _, err := c.Dataset(ctx, s, Baseline)
	return ds, err
}

// Export writes the working dataset to w.
func (c *Controller) Export(ctx context.Context, s *Session, w io.Writer, opts export.Options) error {
	ds, err := c.Working(ctx, s)
	if err != nil {
		return err
	}
	start := time.Now()
	err = export.Export(logger.ContextWithSession(ctx, s.ID), w, ds, opts)
	metrics.ExportsTotal.WithLabelValues(string(opts.Format), metrics.Status(err)).Inc()
	if err != nil {
		c.logger.Error("export failed", zap.String("session_id", s.ID), zap.Error(err))
		return err
	}
	c.logger.Info("dataset exported",
		zap.String("session_id", s.ID),
		zap.String("file", export.FileName(opts)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Close deletes the session's datasets. Later calls on the session fail
// with a not-found error. Closing twice is a no-op.
func (c *Controller) Close(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	metrics.SessionsActive.Dec()

	werr := c.store.Delete(ctx, s.working)
	berr := c.store.Delete(ctx, s.baseline)
	c.logger.Info("session closed", zap.String("session_id", s.ID), zap.Int("steps", s.steps))
	if werr != nil {
		return werr
	}
	return berr
}

// Fingerprint hashes the split encoding of ds. Equal datasets have equal
// fingerprints.
func Fingerprint(ds *dataset.Dataset) (string, error) {
	data, err := codec.MarshalSplit(ds)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxh3.Hash(data)), nil
}
