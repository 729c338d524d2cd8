package document

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/a3tai/asset-form-generator/internal/asset"
	"github.com/a3tai/asset-form-generator/internal/logger"
	"github.com/a3tai/asset-form-generator/internal/survey"
)

// ErrTemplateMissing is returned when the template file cannot be found
var ErrTemplateMissing = errors.New("template not found")

// PhotoSource resolves item photo references. *asset.Resolver satisfies it.
type PhotoSource interface {
	Resolve(ctx context.Context, cell string) (*asset.Image, bool)
}

// Photos maps an item index within its group to the resolved image
type Photos map[int]*asset.Image

// GeneratedDocument describes the files written for one submission group
type GeneratedDocument struct {
	Path          string                  `json:"path"`
	ReportPath    string                  `json:"report_path,omitempty"`
	Group         *survey.SubmissionGroup `json:"-"`
	ItemCount     int                     `json:"item_count"`
	PhotosPlaced  int                     `json:"photos_placed"`
	PhotosMissing int                     `json:"photos_missing"`
}

// Name returns the spreadsheet file name
func (d GeneratedDocument) Name() string {
	return filepath.Base(d.Path)
}

// SpreadsheetProjector fills a copy of the inventory template for one group
type SpreadsheetProjector struct {
	template string
	layout   Layout
	photos   PhotoSource
	log      *logger.Logger
	now      func() time.Time
}

// NewSpreadsheetProjector creates a projector for the given template. photos
// may be nil, in which case photo cells stay blank.
func NewSpreadsheetProjector(template string, layout Layout, photos PhotoSource, log *logger.Logger) (*SpreadsheetProjector, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	if _, err := os.Stat(template); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, template)
		}
		return nil, fmt.Errorf("cannot access template: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &SpreadsheetProjector{
		template: template,
		layout:   layout,
		photos:   photos,
		log:      log,
		now:      time.Now,
	}, nil
}

// Layout returns the coordinate map in use
func (p *SpreadsheetProjector) Layout() Layout {
	return p.layout
}

// Project writes the filled spreadsheet for g to outPath and returns the
// generated document with the photos that were embedded
func (p *SpreadsheetProjector) Project(ctx context.Context, g *survey.SubmissionGroup, outPath string) (*GeneratedDocument, Photos, error) {
	f, err := excelize.OpenFile(p.template)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			p.log.Debug("failed to close template", "error", cerr)
		}
	}()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		return nil, nil, fmt.Errorf("template has no active sheet")
	}

	extra := p.layout.ExtraRows(g.ItemCount())
	if extra > 0 {
		if err := f.InsertRows(sheet, p.layout.FooterRow(), extra); err != nil {
			return nil, nil, fmt.Errorf("failed to insert %d item rows: %w", extra, err)
		}
		p.log.Debug("item rows inserted", "group", g.Key, "extra", extra)
	}

	if err := p.fillHeader(f, sheet, g.Person, extra); err != nil {
		return nil, nil, err
	}

	doc := &GeneratedDocument{Path: outPath, Group: g, ItemCount: g.ItemCount()}
	photos := make(Photos)
	for k, item := range g.Items {
		if err := p.fillItem(f, sheet, k, item, g.Person); err != nil {
			return nil, nil, err
		}
		if !item.HasPhoto() || p.photos == nil {
			continue
		}
		img, ok := p.photos.Resolve(ctx, item.PhotoRef)
		if !ok {
			doc.PhotosMissing++
			continue
		}
		if err := p.placePhoto(f, sheet, p.layout.ItemRow(k), img); err != nil {
			p.log.Warn("failed to embed photo", "group", g.Key, "asset_id", item.AssetID, "error", err)
			doc.PhotosMissing++
			continue
		}
		photos[k] = img
		doc.PhotosPlaced++
	}

	if err := f.SaveAs(outPath); err != nil {
		return nil, nil, fmt.Errorf("failed to save %s: %w", outPath, err)
	}
	return doc, photos, nil
}

func (p *SpreadsheetProjector) fillHeader(f *excelize.File, sheet string, person survey.PersonInfo, extra int) error {
	l := p.layout
	cells := []struct {
		cell  string
		value string
	}{
		{l.AreaCell, person.Area},
		{l.DivisionCell, person.Division},
		{l.PreparedByCell, person.PreparedBy},
		{l.PICCell, person.PIC},
		{l.PositionCell, person.Position},
	}
	for _, c := range cells {
		cell, err := l.ShiftCell(c.cell, extra)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, c.value); err != nil {
			return fmt.Errorf("failed to set %s: %w", cell, err)
		}
	}

	yearCell, err := l.ShiftCell(l.YearCell, extra)
	if err != nil {
		return err
	}
	current, err := f.GetCellValue(sheet, yearCell)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", yearCell, err)
	}
	year := survey.TimestampYear(person.Timestamp, p.now())
	if err := f.SetCellValue(sheet, yearCell, FillYear(current, year)); err != nil {
		return fmt.Errorf("failed to set %s: %w", yearCell, err)
	}
	return nil
}

func (p *SpreadsheetProjector) fillItem(f *excelize.File, sheet string, k int, item survey.Item, person survey.PersonInfo) error {
	row := strconv.Itoa(p.layout.ItemRow(k))
	cols := p.layout.Columns
	values := []struct {
		col   string
		value interface{}
	}{
		{cols.Sequence, item.Sequence},
		{cols.Category, item.Category},
		{cols.AssetID, item.AssetID},
		{cols.Year, item.Year()},
		{cols.UsedBy, person.Name},
		{cols.Position, person.Position},
		{cols.Condition, person.Condition},
	}
	for _, v := range values {
		if v.col == "" {
			continue
		}
		if err := f.SetCellValue(sheet, v.col+row, v.value); err != nil {
			return fmt.Errorf("failed to set %s%s: %w", v.col, row, err)
		}
	}
	return nil
}

func (p *SpreadsheetProjector) placePhoto(f *excelize.File, sheet string, row int, img *asset.Image) error {
	if p.layout.Columns.Photo == "" {
		return nil
	}
	scale := photoScale(img.Width, img.Height, p.layout.PhotoWidth, p.layout.PhotoHeight)
	if err := f.SetRowHeight(sheet, row, p.layout.PhotoRowHeight); err != nil {
		return err
	}
	return f.AddPictureFromBytes(sheet, p.layout.Columns.Photo+strconv.Itoa(row), &excelize.Picture{
		Extension: ".png",
		File:      img.Data,
		Format: &excelize.GraphicOptions{
			AltText:         "asset photo " + img.ID,
			ScaleX:          scale,
			ScaleY:          scale,
			OffsetX:         2,
			OffsetY:         2,
			LockAspectRatio: true,
			Positioning:     "oneCell",
		},
	})
}

// FillYear substitutes year into the template title cell. The placeholder
// token wins; otherwise an existing year is replaced, and an empty cell gets
// the bare year.
func FillYear(current, year string) string {
	switch {
	case strings.Contains(current, YearToken):
		return strings.ReplaceAll(current, YearToken, year)
	case strings.TrimSpace(current) == "":
		return year
	}
	if old := survey.ExtractYear(current); old != "" {
		return strings.Replace(current, old, year, 1)
	}
	return current + " " + year
}

func photoScale(w, h, boxW, boxH int) float64 {
	if w <= 0 || h <= 0 || boxW <= 0 || boxH <= 0 {
		return 1
	}
	s := math.Min(float64(boxW)/float64(w), float64(boxH)/float64(h))
	return math.Min(s, 1)
}
