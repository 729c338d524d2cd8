package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/a3tai/asset-form-generator/internal/document"
	"github.com/a3tai/asset-form-generator/internal/survey"
)

// Stage names the step of a run a failure belongs to
type Stage string

const (
	StageProject  Stage = "project"
	StageReport   Stage = "report"
	StageDelivery Stage = "delivery"
)

// Failure is one recovered, non-fatal error of a run
type Failure struct {
	Stage   Stage  `json:"stage"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// RunSummary aggregates the outcome of a generation run
type RunSummary struct {
	RunID    string        `json:"run_id"`
	Input    string        `json:"input"`
	DryRun   bool          `json:"dry_run"`
	Duration time.Duration `json:"duration"`

	RowsRead      int `json:"rows_read"`
	RowsProcessed int `json:"rows_processed"`
	Groups        int `json:"groups"`
	Items         int `json:"items"`

	DocumentsGenerated int `json:"documents_generated"`
	DocumentsFailed    int `json:"documents_failed"`
	ReportsGenerated   int `json:"reports_generated"`
	ReportsFailed      int `json:"reports_failed"`
	ImagesResolved     int `json:"images_resolved"`
	ImagesMissing      int `json:"images_missing"`
	EmailsSent         int `json:"emails_sent"`
	EmailsFailed       int `json:"emails_failed"`
	EmailsSkipped      int `json:"emails_skipped"`

	Documents []document.GeneratedDocument `json:"documents"`
	Planned   []string                     `json:"planned,omitempty"`
	Failures  []Failure                    `json:"failures,omitempty"`
}

func (s *RunSummary) addFailure(stage Stage, subject string, err error) {
	s.Failures = append(s.Failures, Failure{Stage: stage, Subject: subject, Message: err.Error()})
}

// String renders the end-of-run line, e.g. "generated 3/4 spreadsheets"
func (s *RunSummary) String() string {
	var b strings.Builder
	if s.DryRun {
		fmt.Fprintf(&b, "dry run: %d/%d spreadsheets planned", len(s.Planned), s.Groups)
	} else {
		fmt.Fprintf(&b, "generated %d/%d spreadsheets", s.DocumentsGenerated, s.Groups)
	}
	fmt.Fprintf(&b, " from %d rows (%d items)", s.RowsProcessed, s.Items)
	if s.ReportsGenerated+s.ReportsFailed > 0 {
		fmt.Fprintf(&b, ", reports %d/%d", s.ReportsGenerated, s.ReportsGenerated+s.ReportsFailed)
	}
	if s.ImagesResolved+s.ImagesMissing > 0 {
		fmt.Fprintf(&b, ", photos %d embedded, %d missing", s.ImagesResolved, s.ImagesMissing)
	}
	if s.EmailsSent+s.EmailsFailed+s.EmailsSkipped > 0 {
		fmt.Fprintf(&b, ", emails %d sent, %d failed, %d skipped", s.EmailsSent, s.EmailsFailed, s.EmailsSkipped)
	}
	return b.String()
}

// Preview is the classification and grouping of an input without any output
type Preview struct {
	Input          string                    `json:"input"`
	RowsRead       int                       `json:"rows_read"`
	Classification *survey.Classification    `json:"classification"`
	Unclassified   []string                  `json:"unclassified,omitempty"`
	Groups         []*survey.SubmissionGroup `json:"groups"`
	Files          []string                  `json:"files"`
}
