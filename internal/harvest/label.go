package harvest

import "strings"

// Label is a classification category. The zero value means "not yet
// classified"; LabelUnknown is the terminal value for items that could not be
// classified.
type Label string

// LabelUnknown marks an item enrichment gave up on.
const LabelUnknown Label = "Unknown"

// DefaultLabels is the category set used when none is configured.
var DefaultLabels = []string{
	"Reinforcement Learning",
	"Computer Vision",
	"Natural Language Processing",
	"Optimization",
	"Theoretical ML",
}

// LabelSet is the closed set of categories a classifier may answer with.
type LabelSet struct {
	names  []string
	byFold map[string]Label
}

// NewLabelSet builds a LabelSet from display names. Blank and duplicate
// names are dropped; "Unknown" is always implicitly a member.
func NewLabelSet(names []string) LabelSet {
	set := LabelSet{byFold: make(map[string]Label, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := set.byFold[key]; ok {
			continue
		}
		set.byFold[key] = Label(name)
		set.names = append(set.names, name)
	}
	return set
}

// Names returns the configured category names in order.
func (s LabelSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Contains reports whether l is a member of the set or LabelUnknown.
func (s LabelSet) Contains(l Label) bool {
	if l == LabelUnknown {
		return true
	}
	got, ok := s.byFold[strings.ToLower(string(l))]
	return ok && got == l
}

// Parse maps a free-form classifier reply onto the set. Replies that do not
// name exactly one member yield LabelUnknown.
func (s LabelSet) Parse(reply string) Label {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.Trim(cleaned, "\"'`*")
	cleaned = strings.TrimSuffix(cleaned, ".")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return LabelUnknown
	}
	if l, ok := s.byFold[strings.ToLower(cleaned)]; ok {
		return l
	}
	return LabelUnknown
}
