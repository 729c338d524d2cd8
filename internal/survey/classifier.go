package survey

import (
	"sort"
	"strconv"
	"strings"
)

// SlotColumn ties a header to one attribute of one numbered item slot
type SlotColumn struct {
	Slot      int           `json:"slot"`
	Attribute ItemAttribute `json:"attribute"`
}

// Classification is the header mapping computed once per input file
type Classification struct {
	Headers []string `json:"headers"`

	// Fields maps a logical field to the index of the first column carrying it
	Fields map[Field]int `json:"fields"`

	// Slots maps slot number -> attribute -> column index
	Slots map[int]map[ItemAttribute]int `json:"slots"`

	// Numbered is false when no "Asset N" column was found and the single
	// unnumbered item fallback was used
	Numbered bool `json:"numbered"`
}

// SlotNumbers returns the discovered slot numbers in ascending order
func (c *Classification) SlotNumbers() []int {
	slots := make([]int, 0, len(c.Slots))
	for n := range c.Slots {
		slots = append(slots, n)
	}
	sort.Ints(slots)
	return slots
}

// ColumnField returns the field assigned to a header, if any
func (c *Classification) ColumnField(header string) (Field, bool) {
	for f, idx := range c.Fields {
		if c.Headers[idx] == header {
			return f, true
		}
	}
	return "", false
}

// ColumnSlot returns the slot assignment of a header, if any
func (c *Classification) ColumnSlot(header string) (SlotColumn, bool) {
	for slot, attrs := range c.Slots {
		for attr, idx := range attrs {
			if c.Headers[idx] == header {
				return SlotColumn{Slot: slot, Attribute: attr}, true
			}
		}
	}
	return SlotColumn{}, false
}

// HeaderClassifier assigns headers to fields and item slots using an ordered
// rule table
type HeaderClassifier struct {
	rules []FieldRule
}

// NewHeaderClassifier creates a classifier with the default rule table
func NewHeaderClassifier() *HeaderClassifier {
	rules := getDefaultFieldRules()
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return &HeaderClassifier{rules: rules}
}

// Rules returns the rules in evaluation order
func (hc *HeaderClassifier) Rules() []FieldRule {
	out := make([]FieldRule, len(hc.rules))
	copy(out, hc.rules)
	return out
}

// Classify maps disambiguated headers to fields and item slots. Each column
// ends up with at most one assignment.
func (hc *HeaderClassifier) Classify(headers []string) *Classification {
	c := &Classification{
		Headers: append([]string(nil), headers...),
		Fields:  make(map[Field]int),
		Slots:   make(map[int]map[ItemAttribute]int),
	}

	claimed := make(map[int]bool)

	hc.classifySlots(c, claimed)
	if len(c.Slots) > 0 {
		c.Numbered = true
	} else {
		hc.classifyFallback(c, claimed)
	}

	for idx, header := range headers {
		if claimed[idx] {
			continue
		}
		lower := strings.ToLower(header)
		for _, rule := range hc.rules {
			if !rule.matches(lower) {
				continue
			}
			if _, taken := c.Fields[rule.Field]; !taken {
				c.Fields[rule.Field] = idx
			}
			claimed[idx] = true
			break
		}
	}

	return c
}

// classifySlots scans for "Asset N" headers. Photo columns are resolved to
// their slot but never considered as the asset id column.
func (hc *HeaderClassifier) classifySlots(c *Classification, claimed map[int]bool) {
	for idx, header := range c.Headers {
		m := slotPattern.FindStringSubmatch(header)
		if m == nil {
			continue
		}
		slot, err := strconv.Atoi(m[1])
		if err != nil || slot <= 0 {
			continue
		}

		lower := strings.ToLower(header)
		attr, ok := slotAttribute(lower)
		if !ok {
			continue
		}

		attrs, exists := c.Slots[slot]
		if !exists {
			attrs = make(map[ItemAttribute]int)
			c.Slots[slot] = attrs
		}
		if _, taken := attrs[attr]; taken {
			continue
		}
		attrs[attr] = idx
		claimed[idx] = true
	}
}

// classifyFallback handles forms with a single unnumbered item
func (hc *HeaderClassifier) classifyFallback(c *Classification, claimed map[int]bool) {
	attrs := make(map[ItemAttribute]int)
	for idx, header := range c.Headers {
		lower := strings.ToLower(header)
		isPhoto := containsAny(lower, photoKeywords)

		switch {
		case isPhoto && strings.Contains(lower, "asset"):
			if _, taken := attrs[AttrPhotoRef]; !taken {
				attrs[AttrPhotoRef] = idx
				claimed[idx] = true
			}
		case containsAny(lower, categoryKeywords) &&
			(strings.Contains(lower, "asset") || strings.Contains(lower, "inventaris")):
			if _, taken := attrs[AttrCategory]; !taken {
				attrs[AttrCategory] = idx
				claimed[idx] = true
			}
		case !isPhoto && containsAny(lower, assetIDKeywords) && strings.Contains(lower, "asset"):
			if _, taken := attrs[AttrAssetID]; !taken {
				attrs[AttrAssetID] = idx
				claimed[idx] = true
			}
		}
	}
	if len(attrs) > 0 {
		c.Slots[1] = attrs
	}
}

// slotAttribute picks the attribute of a numbered column: photo keywords win
// over category keywords, which win over the id keyword
func slotAttribute(lower string) (ItemAttribute, bool) {
	switch {
	case containsAny(lower, photoKeywords):
		return AttrPhotoRef, true
	case containsAny(lower, categoryKeywords):
		return AttrCategory, true
	case containsAny(lower, assetIDKeywords):
		return AttrAssetID, true
	}
	return "", false
}

func (r FieldRule) matches(lower string) bool {
	for _, exact := range r.Exact {
		if strings.TrimSpace(lower) == exact {
			return true
		}
	}
	if r.Pattern != nil && r.Pattern.MatchString(lower) {
		return true
	}
	if len(r.AllOf) == 0 {
		return false
	}
	for _, group := range r.AllOf {
		if !containsAny(lower, group) {
			return false
		}
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
