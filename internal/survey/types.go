package survey

import (
	"regexp"
	"strings"
)

// Field identifies a non-repeated logical field of a submission
type Field string

const (
	FieldTimestamp      Field = "timestamp"
	FieldRequesterName  Field = "requester_name"
	FieldUsedBy         Field = "used_by"
	FieldPreparedBy     Field = "prepared_by"
	FieldDivision       Field = "division"
	FieldArea           Field = "area"
	FieldPIC            Field = "pic"
	FieldPosition       Field = "position"
	FieldUsageCondition Field = "usage_condition"
	FieldEmail          Field = "email"
)

// ItemAttribute identifies which part of a repeated item a column carries
type ItemAttribute string

const (
	AttrAssetID  ItemAttribute = "asset_id"
	AttrCategory ItemAttribute = "category"
	AttrPhotoRef ItemAttribute = "photo_ref"
)

// UnknownValue is the placeholder used for missing descriptive fields
const UnknownValue = "Unknown"

// Item is one inventoried object reported in a submission
type Item struct {
	Sequence int    `json:"sequence"`
	AssetID  string `json:"asset_id"`
	Category string `json:"category,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

// Year returns the acquisition year derived from the asset id
func (i Item) Year() string {
	return ExtractYear(i.AssetID)
}

// HasPhoto reports whether the item references a photo
func (i Item) HasPhoto() bool {
	return i.PhotoRef != ""
}

// PersonInfo holds the non-repeated fields of a submission. Every field carries
// either a value or its placeholder default.
type PersonInfo struct {
	Timestamp  string `json:"timestamp"`
	Name       string `json:"name"`
	PreparedBy string `json:"prepared_by"`
	Division   string `json:"division"`
	Area       string `json:"area"`
	PIC        string `json:"pic"`
	Position   string `json:"position"`
	Condition  string `json:"condition"`
	Email      string `json:"email"`
}

// DefaultPersonInfo returns a PersonInfo with every placeholder applied
func DefaultPersonInfo() PersonInfo {
	return PersonInfo{
		Name:       UnknownValue,
		PreparedBy: UnknownValue,
		Division:   UnknownValue,
		Area:       UnknownValue,
		PIC:        UnknownValue,
		Position:   UnknownValue,
	}
}

var yearPattern = regexp.MustCompile(`(?:19|20)\d{2}`)

// ExtractYear returns the first 19xx/20xx token found anywhere in s, or ""
// when none. Serial numbers containing such a token yield a false year.
func ExtractYear(s string) string {
	return yearPattern.FindString(s)
}

// IsLink reports whether v looks like a hyperlink rather than an identifier
func IsLink(v string) bool {
	lower := strings.ToLower(strings.TrimSpace(v))
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "www.")
}
