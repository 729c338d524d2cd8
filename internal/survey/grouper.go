package survey

import "strings"

// KeySeparator joins the identity fields of a group key
const KeySeparator = "|"

// SubmissionGroup is the per-person aggregation unit. Person holds the first
// row seen for the key; later rows only contribute items.
type SubmissionGroup struct {
	Key    string     `json:"key"`
	Index  int        `json:"index"`
	Person PersonInfo `json:"person"`
	Items  []Item     `json:"items"`
	Rows   []int      `json:"rows"`
}

// ItemCount returns the number of accumulated items
func (g *SubmissionGroup) ItemCount() int {
	return len(g.Items)
}

// DuplicateAssetIDs lists asset ids that occur more than once in the group,
// in order of their first repeat
func (g *SubmissionGroup) DuplicateAssetIDs() []string {
	seen := make(map[string]int, len(g.Items))
	var dups []string
	for _, it := range g.Items {
		seen[it.AssetID]++
		if seen[it.AssetID] == 2 {
			dups = append(dups, it.AssetID)
		}
	}
	return dups
}

// GroupKey builds the identity key of a person record
func GroupKey(p PersonInfo) string {
	return strings.Join([]string{
		orUnknown(p.Name),
		orUnknown(p.Division),
		orUnknown(p.Area),
	}, KeySeparator)
}

func orUnknown(v string) string {
	if v == "" {
		return UnknownValue
	}
	return v
}

// Grouper accumulates rows into groups in first-seen order
type Grouper struct {
	groups []*SubmissionGroup
	byKey  map[string]*SubmissionGroup
}

// NewGrouper creates an empty grouper
func NewGrouper() *Grouper {
	return &Grouper{byKey: make(map[string]*SubmissionGroup)}
}

// Add appends the row's items to the group for its key, creating the group on
// first sight. Items are never deduplicated.
func (g *Grouper) Add(person PersonInfo, items []Item, rowNumber int) *SubmissionGroup {
	key := GroupKey(person)
	group, ok := g.byKey[key]
	if !ok {
		group = &SubmissionGroup{
			Key:    key,
			Index:  len(g.groups) + 1,
			Person: person,
		}
		g.byKey[key] = group
		g.groups = append(g.groups, group)
	}
	group.Items = append(group.Items, items...)
	group.Rows = append(group.Rows, rowNumber)
	return group
}

// Groups returns the groups in the order their keys were first seen
func (g *Grouper) Groups() []*SubmissionGroup {
	out := make([]*SubmissionGroup, len(g.groups))
	copy(out, g.groups)
	return out
}

// Len returns the number of groups
func (g *Grouper) Len() int {
	return len(g.groups)
}

// TotalItems returns the item count across every group
func (g *Grouper) TotalItems() int {
	total := 0
	for _, group := range g.groups {
		total += len(group.Items)
	}
	return total
}
