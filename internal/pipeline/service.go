package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/asset-form-generator/internal/asset"
	"github.com/a3tai/asset-form-generator/internal/config"
	"github.com/a3tai/asset-form-generator/internal/delivery"
	"github.com/a3tai/asset-form-generator/internal/document"
	"github.com/a3tai/asset-form-generator/internal/logger"
	"github.com/a3tai/asset-form-generator/internal/security"
	"github.com/a3tai/asset-form-generator/internal/survey"
)

// ErrRowOutOfRange is returned when the requested data row does not exist
var ErrRowOutOfRange = errors.New("row out of range")

// Request selects the input and output locations of one run. Empty fields
// fall back to the service configuration.
type Request struct {
	Input     string
	OutputDir string
	ReportDir string
	Row       int
	DryRun    bool
}

// Service runs the survey to documents pipeline
type Service struct {
	cfg        *config.Config
	log        *logger.Logger
	classifier *survey.HeaderClassifier
	validator  *survey.Validator
	layout     document.Layout
	reports    *document.ReportBuilder
	resolver   *asset.Resolver
	dispatcher *delivery.Dispatcher
}

// Option customizes a Service
type Option func(*Service)

// WithResolver enables photo embedding through r
func WithResolver(r *asset.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithDispatcher enables email delivery through d
func WithDispatcher(d *delivery.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithLayout overrides the template coordinate map
func WithLayout(l document.Layout) Option {
	return func(s *Service) { s.layout = l }
}

// New creates a pipeline service
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	reportOpts := document.DefaultReportOptions()
	reportOpts.RowsPerPage = cfg.ReportRowsPage

	s := &Service{
		cfg:        cfg,
		log:        log,
		classifier: survey.NewHeaderClassifier(),
		validator:  survey.NewValidator(cfg.MaxInputSize),
		layout:     document.DefaultLayout(),
		reports:    document.NewReportBuilder(reportOpts),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes the configured input
func (s *Service) Run(ctx context.Context) (*RunSummary, error) {
	return s.Generate(ctx, Request{
		Input:     s.cfg.InputFile,
		OutputDir: s.cfg.OutputDir,
		ReportDir: s.cfg.ReportDir,
		Row:       s.cfg.Row,
		DryRun:    s.cfg.DryRun,
	})
}

// ResolveInput returns the input path of a request, detecting the newest
// input file in the configured directory when none is given
func (s *Service) ResolveInput(input string) (string, error) {
	if input != "" {
		return input, nil
	}
	path, err := survey.DetectInput(s.cfg.InputDir, s.cfg.TemplateFile)
	if err != nil {
		return "", err
	}
	s.log.Info("input file detected", "path", path)
	return path, nil
}

// load reads, classifies, extracts and groups the input
func (s *Service) load(input string, row int) (*Preview, error) {
	path, err := s.ResolveInput(input)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateFile(path); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	table, err := survey.ReadFile(path, s.cfg.Sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	classification := s.classifier.Classify(table.Headers)
	preview := &Preview{
		Input:          path,
		RowsRead:       table.Len(),
		Classification: classification,
	}
	for _, h := range table.Headers {
		_, isField := classification.ColumnField(h)
		_, isSlot := classification.ColumnSlot(h)
		if !isField && !isSlot {
			preview.Unclassified = append(preview.Unclassified, h)
		}
	}

	first, last := 1, table.Len()
	if row > 0 {
		if row > table.Len() {
			return nil, fmt.Errorf("%w: row %d requested, input has %d data rows", ErrRowOutOfRange, row, table.Len())
		}
		first, last = row, row
	}

	extractor := survey.NewExtractor(classification)
	grouper := survey.NewGrouper()
	for n := first; n <= last; n++ {
		person, items := extractor.Extract(table.Rows[n-1])
		grouper.Add(person, items, n)
	}

	preview.Groups = grouper.Groups()
	for _, g := range preview.Groups {
		preview.Files = append(preview.Files, document.SpreadsheetName(g))
		if dups := g.DuplicateAssetIDs(); len(dups) > 0 {
			s.log.Warn("duplicate asset ids in group", "group", g.Key, "asset_ids", dups)
		}
	}
	return preview, nil
}

// Preview classifies and groups an input without writing anything
func (s *Service) Preview(_ context.Context, input string) (*Preview, error) {
	return s.load(input, 0)
}

// Generate runs the whole pipeline for req. Only input and configuration
// problems are returned as errors; per-group failures are recorded in the
// summary.
func (s *Service) Generate(ctx context.Context, req Request) (*RunSummary, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := s.log.With("run_id", runID)

	if req.OutputDir == "" {
		req.OutputDir = s.cfg.OutputDir
	}
	if req.ReportDir == "" {
		req.ReportDir = s.cfg.ReportDir
	}

	preview, err := s.load(req.Input, req.Row)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		RunID:    runID,
		Input:    preview.Input,
		DryRun:   req.DryRun,
		RowsRead: preview.RowsRead,
		Groups:   len(preview.Groups),
	}
	summary.RowsProcessed = preview.RowsRead
	if req.Row > 0 {
		summary.RowsProcessed = 1
	}
	for _, g := range preview.Groups {
		summary.Items += g.ItemCount()
	}
	log.Info("input grouped",
		"input", preview.Input,
		"rows", summary.RowsProcessed,
		"groups", summary.Groups,
		"items", summary.Items,
		"unclassified_columns", len(preview.Unclassified),
	)

	if req.DryRun {
		for _, name := range preview.Files {
			summary.Planned = append(summary.Planned, filepath.Join(req.OutputDir, name))
		}
		summary.Duration = time.Since(started)
		log.Info("dry run complete", "planned", len(summary.Planned))
		return summary, nil
	}

	if err := s.project(ctx, log, req, preview.Groups, summary); err != nil {
		return nil, err
	}

	if s.dispatcher != nil && len(summary.Documents) > 0 {
		report := s.dispatcher.Dispatch(ctx, summary.Documents)
		summary.EmailsSent = report.Sent
		summary.EmailsFailed = report.Failed
		summary.EmailsSkipped = report.Skipped
		for _, o := range report.Outcomes {
			if o.Err != nil {
				summary.addFailure(StageDelivery, o.Email, o.Err)
			}
		}
	}

	summary.Duration = time.Since(started)
	log.Info("run complete",
		"summary", summary.String(),
		"failures", len(summary.Failures),
		"duration", summary.Duration,
	)
	return summary, nil
}

type groupResult struct {
	doc       *document.GeneratedDocument
	reportOK  bool
	reportErr error
	err       error
}

// project writes one spreadsheet (and optionally one report) per group with
// at most cfg.Workers groups in flight
func (s *Service) project(ctx context.Context, log *logger.Logger, req Request, groups []*survey.SubmissionGroup, summary *RunSummary) error {
	var photos document.PhotoSource
	if s.resolver != nil {
		photos = s.resolver
	}
	projector, err := document.NewSpreadsheetProjector(s.cfg.TemplateFile, s.layout, photos, log)
	if err != nil {
		return err
	}

	outputs, err := outputDir(req.OutputDir)
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}
	var reportOutputs *security.PathValidator
	if s.cfg.ReportEnabled {
		if reportOutputs, err = outputDir(req.ReportDir); err != nil {
			return fmt.Errorf("invalid report directory: %w", err)
		}
	}

	results := make([]groupResult, len(groups))
	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	done := 0
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				results[i] = groupResult{err: err}
				return nil
			}
			results[i] = s.projectGroup(egCtx, projector, outputs, reportOutputs, g)

			mu.Lock()
			done++
			log.Debug("group processed", "group", g.Key, "progress", fmt.Sprintf("%d/%d", done, len(groups)))
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	for i, r := range results {
		g := groups[i]
		if r.err != nil {
			summary.DocumentsFailed++
			summary.addFailure(StageProject, g.Key, r.err)
			log.Error("document generation failed", "group", g.Key, "error", r.err)
			continue
		}
		summary.DocumentsGenerated++
		summary.ImagesResolved += r.doc.PhotosPlaced
		summary.ImagesMissing += r.doc.PhotosMissing
		summary.Documents = append(summary.Documents, *r.doc)
		log.Info("document generated", "file", r.doc.Name(), "items", r.doc.ItemCount)

		if r.reportErr != nil {
			summary.ReportsFailed++
			summary.addFailure(StageReport, g.Key, r.reportErr)
			log.Error("report generation failed", "group", g.Key, "error", r.reportErr)
		} else if r.reportOK {
			summary.ReportsGenerated++
		}
	}
	return ctx.Err()
}

// outputDir creates dir when missing and returns a validator rooted at it
func outputDir(dir string) (*security.PathValidator, error) {
	v, err := security.NewPathValidator(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(v.Directory(), config.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("cannot create directory %s: %w", v.Directory(), err)
	}
	return v, nil
}

func (s *Service) projectGroup(ctx context.Context, projector *document.SpreadsheetProjector, outputs, reportOutputs *security.PathValidator, g *survey.SubmissionGroup) groupResult {
	outPath, err := outputs.Join(document.SpreadsheetName(g))
	if err != nil {
		return groupResult{err: err}
	}
	doc, photos, err := projector.Project(ctx, g, outPath)
	if err != nil {
		return groupResult{err: err}
	}

	res := groupResult{doc: doc}
	if reportOutputs == nil {
		return res
	}
	reportPath, err := reportOutputs.Join(document.ReportName(g))
	if err != nil {
		res.reportErr = err
		return res
	}
	if err := s.reports.WriteFile(reportPath, g, photos); err != nil {
		res.reportErr = err
		return res
	}
	doc.ReportPath = reportPath
	res.reportOK = true
	return res
}
