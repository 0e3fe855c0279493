package timeline

import "fmt"

// Scrubber tracks an inspection position over a merged timeline. Selecting an
// index never mutates the underlying session; it only moves the view.
type Scrubber struct {
	entries []Entry
	index   int
}

// NewScrubber builds a scrubber positioned on the newest entry.
func NewScrubber(entries []Entry) *Scrubber {
	return &Scrubber{
		entries: append([]Entry(nil), entries...),
		index:   len(entries) - 1,
	}
}

func (s *Scrubber) Len() int {
	return len(s.entries)
}

func (s *Scrubber) Index() int {
	return s.index
}

// Select moves the scrub position to index.
func (s *Scrubber) Select(index int) error {
	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("timeline index %d out of range [0,%d)", index, len(s.entries))
	}
	s.index = index
	return nil
}

// Current returns the entry under the scrub position; false when there are
// no entries.
func (s *Scrubber) Current() (Entry, bool) {
	if s.index < 0 || s.index >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[s.index], true
}
