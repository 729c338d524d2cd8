package survey

import "strings"

// Extractor turns rows into normalized person records and items
type Extractor struct {
	classification *Classification
}

// NewExtractor creates an extractor bound to one file's classification
func NewExtractor(c *Classification) *Extractor {
	return &Extractor{classification: c}
}

// Extract reads one row. Missing or blank values fall back to the field's
// placeholder. Items are returned in ascending slot order and only when their
// asset id is present and is not a link.
func (e *Extractor) Extract(row []string) (PersonInfo, []Item) {
	c := e.classification
	person := DefaultPersonInfo()

	set := func(f Field, dst *string) {
		if v, ok := e.value(row, f); ok {
			*dst = v
		}
	}

	set(FieldTimestamp, &person.Timestamp)
	set(FieldRequesterName, &person.Name)
	set(FieldUsedBy, &person.Name)
	set(FieldPreparedBy, &person.PreparedBy)
	set(FieldDivision, &person.Division)
	set(FieldArea, &person.Area)
	set(FieldPIC, &person.PIC)
	set(FieldPosition, &person.Position)
	set(FieldUsageCondition, &person.Condition)
	set(FieldEmail, &person.Email)

	// The older single-name forms have no separate preparer column
	if _, ok := c.Fields[FieldPreparedBy]; !ok {
		if _, legacy := c.Fields[FieldRequesterName]; legacy {
			person.PreparedBy = person.Name
		}
	}

	var items []Item
	for _, slot := range c.SlotNumbers() {
		attrs := c.Slots[slot]
		id := cell(row, attrs, AttrAssetID)
		if id == "" || IsLink(id) {
			continue
		}
		items = append(items, Item{
			Sequence: slot,
			AssetID:  id,
			Category: cell(row, attrs, AttrCategory),
			PhotoRef: cell(row, attrs, AttrPhotoRef),
		})
	}

	return person, items
}

func (e *Extractor) value(row []string, f Field) (string, bool) {
	idx, ok := e.classification.Fields[f]
	if !ok || idx >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[idx])
	if v == "" || strings.EqualFold(v, "nan") {
		return "", false
	}
	return v, true
}

func cell(row []string, attrs map[ItemAttribute]int, attr ItemAttribute) string {
	idx, ok := attrs[attr]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
