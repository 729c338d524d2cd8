package document

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/a3tai/asset-form-generator/internal/survey"
)

const (
	SpreadsheetExt = ".xlsx"
	ReportExt      = ".pdf"
)

// FileStem builds {index}_{area}_{division}_{name}_{count}items for a group
func FileStem(g *survey.SubmissionGroup) string {
	return fmt.Sprintf("%d_%s_%s_%s_%ditems",
		g.Index,
		SanitizeFilename(g.Person.Area),
		SanitizeFilename(g.Person.Division),
		SanitizeFilename(g.Person.Name),
		g.ItemCount(),
	)
}

// SpreadsheetName is the output file name of a group's spreadsheet
func SpreadsheetName(g *survey.SubmissionGroup) string {
	return FileStem(g) + SpreadsheetExt
}

// ReportName is the output file name of a group's PDF report
func ReportName(g *survey.SubmissionGroup) string {
	return FileStem(g) + ReportExt
}

// SanitizeFilename replaces characters that are unsafe in file names with "_"
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return survey.UnknownValue
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		safe := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.'
		if !safe {
			if !lastUnderscore {
				b.WriteRune('_')
			}
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}

	out := strings.Trim(b.String(), "_.")
	if out == "" {
		return survey.UnknownValue
	}
	return out
}
