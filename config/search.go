package config

import "strings"

// SearchIter yields the fully-qualified candidates for a query name, one per
// Next call, per the ndots rule: a name with at least ndots labels separated
// by dots is tried bare before any suffix is appended, otherwise the search
// suffixes are tried in listed order before the bare name. A name given with
// a trailing dot is already qualified and yields itself only.
type SearchIter struct {
	candidates []string
	pos        int
}

// SearchIter returns the candidate iterator for name under the current
// search list.
func (c *Config) SearchIter(name string) *SearchIter {
	it := new(SearchIter)

	if strings.HasSuffix(name, ".") {
		it.candidates = []string{name}
		return it
	}

	bare := name + "."
	suffixed := make([]string, 0, len(c.Search))
	for _, s := range c.Search {
		suffixed = append(suffixed, joinSuffix(name, s))
	}

	if strings.Count(name, ".") >= c.Options.Ndots {
		it.candidates = append([]string{bare}, suffixed...)
	} else {
		it.candidates = append(suffixed, bare)
	}
	return it
}

// Next returns the next candidate, or false when the sequence is exhausted.
func (it *SearchIter) Next() (string, bool) {
	if it.pos >= len(it.candidates) {
		return "", false
	}
	c := it.candidates[it.pos]
	it.pos++
	return c, true
}

// Reset restarts the sequence from the first candidate.
func (it *SearchIter) Reset() { it.pos = 0 }

func joinSuffix(name, suffix string) string {
	full := name + "." + suffix
	if !strings.HasSuffix(full, ".") {
		full += "."
	}
	return full
}
