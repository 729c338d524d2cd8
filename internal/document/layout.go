package document

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// YearToken is the placeholder in the template title replaced by the submission year
const YearToken = "{YEAR}"

// ItemColumns names the template column for each item attribute
type ItemColumns struct {
	Sequence  string
	Category  string
	AssetID   string
	Year      string
	UsedBy    string
	Position  string
	Condition string
	Photo     string
}

// Layout is the fixed coordinate map of the inventory template
type Layout struct {
	AreaCell       string
	DivisionCell   string
	YearCell       string
	PreparedByCell string
	PICCell        string
	PositionCell   string

	ItemBaseRow  int
	ItemCapacity int
	Columns      ItemColumns

	// Photo box in pixels and the row height (points) used when a photo is embedded
	PhotoWidth     int
	PhotoHeight    int
	PhotoRowHeight float64
}

// DefaultLayout returns the coordinates of template_inventaris.xlsx
func DefaultLayout() Layout {
	return Layout{
		AreaCell:       "G1",
		DivisionCell:   "G2",
		YearCell:       "A5",
		PreparedByCell: "D27",
		PICCell:        "J28",
		PositionCell:   "D28",
		ItemBaseRow:    9,
		ItemCapacity:   18,
		Columns: ItemColumns{
			Sequence:  "A",
			Category:  "B",
			AssetID:   "C",
			Year:      "D",
			UsedBy:    "E",
			Position:  "F",
			Condition: "G",
			Photo:     "H",
		},
		PhotoWidth:     110,
		PhotoHeight:    75,
		PhotoRowHeight: 60,
	}
}

// FooterRow is the first row after the item block
func (l Layout) FooterRow() int {
	return l.ItemBaseRow + l.ItemCapacity
}

// ItemRow returns the sheet row for the k-th item (0-based)
func (l Layout) ItemRow(k int) int {
	return l.ItemBaseRow + k
}

// ExtraRows is how many rows must be inserted so n items fit
func (l Layout) ExtraRows(n int) int {
	if n <= l.ItemCapacity {
		return 0
	}
	return n - l.ItemCapacity
}

// ShiftCell moves a footer cell down by extra rows. Cells above the footer
// stay where they are.
func (l Layout) ShiftCell(cell string, extra int) (string, error) {
	if extra == 0 {
		return cell, nil
	}
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return "", fmt.Errorf("invalid cell %q: %w", cell, err)
	}
	if row < l.FooterRow() {
		return cell, nil
	}
	return excelize.CoordinatesToCellName(col, row+extra)
}

// Validate checks that the item block does not overlap any header or footer cell
func (l Layout) Validate() error {
	if l.ItemBaseRow < 1 || l.ItemCapacity < 1 {
		return fmt.Errorf("item block must start at row 1 or later and hold at least one item")
	}
	for _, cell := range []string{l.AreaCell, l.DivisionCell, l.YearCell, l.PreparedByCell, l.PICCell, l.PositionCell} {
		_, row, err := excelize.CellNameToCoordinates(cell)
		if err != nil {
			return fmt.Errorf("invalid cell %q: %w", cell, err)
		}
		if row >= l.ItemBaseRow && row < l.FooterRow() {
			return fmt.Errorf("cell %s overlaps the item rows %d..%d", cell, l.ItemBaseRow, l.FooterRow()-1)
		}
	}
	return nil
}
