package harvest

import "sort"

// Stats summarizes the contents of a store.
type Stats struct {
	Items           int
	Downloaded      int
	FailedDownloads int
	Labeled         int
	Unlabeled       int
	ByLabel         map[Label]int
	ByYear          map[int]int
}

// Summarize counts items by download and label state.
func Summarize(items []Item) Stats {
	stats := Stats{ByLabel: map[Label]int{}, ByYear: map[int]int{}}
	for _, item := range items {
		stats.Items++
		stats.ByYear[item.Year]++
		if item.Downloaded() {
			stats.Downloaded++
		} else {
			stats.FailedDownloads++
		}
		if item.Labeled() {
			stats.Labeled++
			stats.ByLabel[item.Label]++
		} else {
			stats.Unlabeled++
		}
	}
	return stats
}

// Labels returns the labels present in s, most frequent first.
func (s Stats) Labels() []Label {
	out := make([]Label, 0, len(s.ByLabel))
	for l := range s.ByLabel {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.ByLabel[out[i]] != s.ByLabel[out[j]] {
			return s.ByLabel[out[i]] > s.ByLabel[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
