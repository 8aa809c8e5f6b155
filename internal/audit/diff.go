package audit

import "sort"

// Diff computes plain set subtraction over permission-key strings:
// added = next \ prior, removed = prior \ next. No case folding. Results
// are sorted for stable storage.
func Diff(prior, next []string) (added, removed []string) {
	priorSet := toSet(prior)
	nextSet := toSet(next)

	added = make([]string, 0)
	for key := range nextSet {
		if _, ok := priorSet[key]; !ok {
			added = append(added, key)
		}
	}
	removed = make([]string, 0)
	for key := range priorSet {
		if _, ok := nextSet[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}
