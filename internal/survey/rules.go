package survey

import "regexp"

// FieldRule maps a header to a Field when every keyword group matches.
// Within a group any keyword may match; all groups must match.
type FieldRule struct {
	Name     string
	Field    Field
	AllOf    [][]string
	Exact    []string
	Pattern  *regexp.Regexp
	Priority int
}

// getDefaultFieldRules returns the ordered header rules. The order is part of
// the classifier contract: a column takes the first rule it matches.
func getDefaultFieldRules() []FieldRule {
	return []FieldRule{
		{
			Name:     "timestamp",
			Field:    FieldTimestamp,
			AllOf:    [][]string{{"timestamp", "waktu"}},
			Priority: 1,
		},
		{
			Name:     "email_address",
			Field:    FieldEmail,
			AllOf:    [][]string{{"email", "e-mail"}, {"address", "alamat"}},
			Exact:    []string{"email", "e-mail"},
			Priority: 2,
		},
		{
			Name:     "used_by",
			Field:    FieldUsedBy,
			AllOf:    [][]string{{"dipakai oleh", "digunakan oleh", "used by"}},
			Priority: 3,
		},
		{
			Name:     "prepared_by",
			Field:    FieldPreparedBy,
			AllOf:    [][]string{{"dibuat oleh", "prepared by"}},
			Priority: 4,
		},
		{
			Name:     "division",
			Field:    FieldDivision,
			AllOf:    [][]string{{"divisi", "division", "departemen"}},
			Priority: 6,
		},
		{
			Name:     "area",
			Field:    FieldArea,
			AllOf:    [][]string{{"area", "lokasi"}},
			Priority: 7,
		},
		{
			Name:     "position",
			Field:    FieldPosition,
			AllOf:    [][]string{{"jabatan", "position"}},
			Priority: 8,
		},
		{
			Name:     "usage_condition",
			Field:    FieldUsageCondition,
			AllOf:    [][]string{{"kondisi", "condition", "keterangan"}},
			Priority: 9,
		},
		{
			Name:     "pic",
			Field:    FieldPIC,
			Pattern:  regexp.MustCompile(`(?i)\bpic\b`),
			Priority: 10,
		},
		{
			// generic name last so "Nama PIC" or "Nama Divisi" land on the
			// more specific field
			Name:     "requester_name",
			Field:    FieldRequesterName,
			AllOf:    [][]string{{"nama", "name"}},
			Priority: 11,
		},
	}
}

// slotPattern finds the numbered item slot in a header. The trailing word
// boundary keeps "Asset 12" from matching slot 1.
var slotPattern = regexp.MustCompile(`(?i)\basset\s*(\d+)\b`)

var (
	photoKeywords    = []string{"upload", "foto", "photo"}
	categoryKeywords = []string{"jenis"}
	assetIDKeywords  = []string{"no"}
)
