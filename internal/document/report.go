package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/a3tai/asset-form-generator/internal/asset"
	"github.com/a3tai/asset-form-generator/internal/survey"
)

const (
	ReportTitle    = "FORM INVENTARIS ASET IT"
	MissingPhoto   = "N/A"
	reportPaper    = "A4P"
	pageWidth      = 595.0
	pageMargin     = 40.0
	tableTop       = 230.0
	textLineHeight = 14.0
	textRowHeight  = 18
	photoRowHeight = 60
)

var (
	reportHeader    = []string{"No", "Category", "Asset ID", "Year", "Condition", "Photo"}
	reportColWidths = []int{6, 22, 28, 10, 20, 14}
)

// ReportOptions controls report pagination and styling
type ReportOptions struct {
	RowsPerPage int
	HeaderColor string
	OddColor    string
	EvenColor   string
}

// DefaultReportOptions returns the standard report styling
func DefaultReportOptions() ReportOptions {
	return ReportOptions{
		RowsPerPage: 12,
		HeaderColor: "#D9E1F2",
		OddColor:    "#FFFFFF",
		EvenColor:   "#F2F2F2",
	}
}

// ReportBuilder renders a group as a paginated PDF using pdfcpu's JSON
// content description
type ReportBuilder struct {
	opts ReportOptions
	now  func() time.Time
}

// NewReportBuilder creates a report builder
func NewReportBuilder(opts ReportOptions) *ReportBuilder {
	if opts.RowsPerPage <= 0 {
		opts.RowsPerPage = DefaultReportOptions().RowsPerPage
	}
	return &ReportBuilder{opts: opts, now: time.Now}
}

// The types below mirror the subset of pdfcpu's create JSON that reports use.

type pdfDoc struct {
	Paper  string              `json:"paper"`
	Origin string              `json:"origin"`
	Fonts  map[string]*pdfFont `json:"fonts,omitempty"`
	Pages  map[string]*pdfPage `json:"pages"`
}

type pdfPage struct {
	Content *pdfContent `json:"content"`
}

type pdfContent struct {
	Text  []*pdfText  `json:"text,omitempty"`
	Table []*pdfTable `json:"table,omitempty"`
	Image []*pdfImage `json:"image,omitempty"`
}

type pdfFont struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Color string `json:"col,omitempty"`
}

type pdfText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  *pdfFont   `json:"font"`
}

type pdfBorder struct {
	Width int    `json:"width"`
	Color string `json:"col"`
}

type pdfTableHeader struct {
	Values     []string `json:"values"`
	ColAnchors []string `json:"colAnchors,omitempty"`
	BgColor    string   `json:"bgCol,omitempty"`
	Font       *pdfFont `json:"font,omitempty"`
}

type pdfTable struct {
	Pos        [2]float64      `json:"pos"`
	Width      float64         `json:"width"`
	Rows       int             `json:"rows"`
	Cols       int             `json:"cols"`
	LineHeight int             `json:"lheight"`
	Font       *pdfFont        `json:"font"`
	Border     *pdfBorder      `json:"border,omitempty"`
	Header     *pdfTableHeader `json:"header"`
	Values     [][]string      `json:"values"`
	ColWidths  []int           `json:"colWidths"`
	OddColor   string          `json:"oddCol,omitempty"`
	EvenColor  string          `json:"evenCol,omitempty"`
	Grid       bool            `json:"grid"`
}

type pdfImage struct {
	Src    string     `json:"src"`
	Pos    [2]float64 `json:"pos"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
}

// PageCount returns the number of pages a report for n items spans
func (b *ReportBuilder) PageCount(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + b.opts.RowsPerPage - 1) / b.opts.RowsPerPage
}

// layout builds the pdfcpu content description for g. Items whose photo
// was resolved get an image element, the rest show N/A. Render stages
// in-memory photos to files before calling layout.
func (b *ReportBuilder) layout(g *survey.SubmissionGroup, photos Photos) *pdfDoc {
	doc := &pdfDoc{
		Paper:  reportPaper,
		Origin: "UpperLeft",
		Pages:  make(map[string]*pdfPage),
	}

	hasImages := false
	for _, img := range photos {
		if resolved(img) {
			hasImages = true
			break
		}
	}
	lineHeight := textRowHeight
	if hasImages {
		lineHeight = photoRowHeight
	}

	tableWidth := pageWidth - 2*pageMargin
	pages := b.PageCount(g.ItemCount())
	for page := 0; page < pages; page++ {
		start := page * b.opts.RowsPerPage
		end := start + b.opts.RowsPerPage
		if end > g.ItemCount() {
			end = g.ItemCount()
		}

		content := &pdfContent{Text: b.pageText(g, page+1, pages)}

		values := make([][]string, 0, end-start)
		for k := start; k < end; k++ {
			item := g.Items[k]
			photoCell := MissingPhoto
			if img, ok := photos[k]; ok && resolved(img) {
				photoCell = ""
				content.Image = append(content.Image, b.photoElement(img, k-start, lineHeight, tableWidth))
			}
			values = append(values, []string{
				strconv.Itoa(item.Sequence),
				item.Category,
				item.AssetID,
				item.Year(),
				g.Person.Condition,
				photoCell,
			})
		}

		rows := len(values) + 1
		if len(values) == 0 {
			values = append(values, []string{"", "", "No items", "", "", ""})
			rows = 2
		}
		content.Table = []*pdfTable{{
			Pos:        [2]float64{pageMargin, tableTop},
			Width:      tableWidth,
			Rows:       rows,
			Cols:       len(reportHeader),
			LineHeight: lineHeight,
			Font:       &pdfFont{Name: "Helvetica", Size: 9, Color: "#000000"},
			Border:     &pdfBorder{Width: 1, Color: "#808080"},
			Header: &pdfTableHeader{
				Values:  reportHeader,
				BgColor: b.opts.HeaderColor,
				Font:    &pdfFont{Name: "Helvetica-Bold", Size: 9, Color: "#000000"},
			},
			Values:    values,
			ColWidths: reportColWidths,
			OddColor:  b.opts.OddColor,
			EvenColor: b.opts.EvenColor,
			Grid:      true,
		}}

		doc.Pages[strconv.Itoa(page+1)] = &pdfPage{Content: content}
	}
	return doc
}

func (b *ReportBuilder) pageText(g *survey.SubmissionGroup, page, pages int) []*pdfText {
	title := &pdfFont{Name: "Helvetica-Bold", Size: 16, Color: "#000000"}
	body := &pdfFont{Name: "Helvetica", Size: 10, Color: "#000000"}

	texts := []*pdfText{
		{Value: ReportTitle, Pos: [2]float64{pageMargin, 50}, Font: title},
	}

	kv := []struct{ k, v string }{
		{"Name", g.Person.Name},
		{"Division", g.Person.Division},
		{"Area", g.Person.Area},
		{"PIC", g.Person.PIC},
		{"Prepared by", g.Person.PreparedBy},
		{"Date", reportDate(g.Person.Timestamp, b.now())},
		{"Items", strconv.Itoa(g.ItemCount())},
	}
	y := 80.0
	for _, e := range kv {
		texts = append(texts, &pdfText{Value: e.k + ": " + e.v, Pos: [2]float64{pageMargin, y}, Font: body})
		y += textLineHeight
	}

	texts = append(texts, &pdfText{
		Value: fmt.Sprintf("Page %d of %d", page, pages),
		Pos:   [2]float64{pageWidth - pageMargin - 70, 810},
		Font:  body,
	})
	return texts
}

// photoElement places an image inside the photo column of the given table row
func (b *ReportBuilder) photoElement(img *asset.Image, row, lineHeight int, tableWidth float64) *pdfImage {
	colX := pageMargin
	for _, w := range reportColWidths[:len(reportColWidths)-1] {
		colX += tableWidth * float64(w) / 100
	}
	colW := tableWidth * float64(reportColWidths[len(reportColWidths)-1]) / 100

	boxH := float64(lineHeight) - 4
	boxW := colW - 4
	w, h := boxW, boxH
	if img.Width > 0 && img.Height > 0 {
		s := boxH / float64(img.Height)
		if ws := boxW / float64(img.Width); ws < s {
			s = ws
		}
		w, h = float64(img.Width)*s, float64(img.Height)*s
	}

	y := tableTop + float64(lineHeight)*float64(row+1) + 2
	return &pdfImage{Src: img.Path, Pos: [2]float64{colX + 2, y}, Width: w, Height: h}
}

// resolved reports whether img carries image data, on disk or in memory
func resolved(img *asset.Image) bool {
	return img != nil && (img.Path != "" || len(img.Data) > 0)
}

// stagePhotos writes photos that exist only in memory to files under dir
// and returns a copy of photos pointing at them
func stagePhotos(photos Photos, dir string) (Photos, error) {
	out := make(Photos, len(photos))
	for k, img := range photos {
		if img == nil || img.Path != "" || len(img.Data) == 0 {
			out[k] = img
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("photo_%d.png", k))
		if err := os.WriteFile(path, img.Data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to stage photo: %w", err)
		}
		staged := *img
		staged.Path = path
		out[k] = &staged
	}
	return out, nil
}

func needsStaging(photos Photos) bool {
	for _, img := range photos {
		if img != nil && img.Path == "" && len(img.Data) > 0 {
			return true
		}
	}
	return false
}

// Render writes the PDF report for g to w
func (b *ReportBuilder) Render(w io.Writer, g *survey.SubmissionGroup, photos Photos) error {
	if needsStaging(photos) {
		dir, err := os.MkdirTemp("", "formgen-report-")
		if err != nil {
			return fmt.Errorf("failed to create photo staging directory: %w", err)
		}
		defer os.RemoveAll(dir)
		if photos, err = stagePhotos(photos, dir); err != nil {
			return err
		}
	}

	js, err := json.Marshal(b.layout(g, photos))
	if err != nil {
		return fmt.Errorf("failed to encode report layout: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false

	if err := api.Create(nil, bytes.NewReader(js), w, conf); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// WriteFile renders the report for g to path and verifies the result
func (b *ReportBuilder) WriteFile(path string, g *survey.SubmissionGroup, photos Photos) error {
	var buf bytes.Buffer
	if err := b.Render(&buf, g, photos); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := VerifyReport(path, b.PageCount(g.ItemCount())); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func reportDate(timestamp string, now time.Time) string {
	if timestamp != "" {
		return timestamp
	}
	return now.Format("2006-01-02")
}
