package models

// Selection is an insertion-ordered set of service IDs chosen in a session.
// The zero value is an empty selection.
type Selection []string

// Contains reports whether id is selected
func (s Selection) Contains(id string) bool {
	return s.indexOf(id) >= 0
}

// Toggle adds id when absent and removes it when present, returning the new selection.
// The receiver is never modified.
func (s Selection) Toggle(id string) Selection {
	if i := s.indexOf(id); i >= 0 {
		out := make(Selection, 0, len(s)-1)
		out = append(out, s[:i]...)
		return append(out, s[i+1:]...)
	}
	out := make(Selection, 0, len(s)+1)
	out = append(out, s...)
	return append(out, id)
}

// Clone returns an independent copy
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	copy(out, s)
	return out
}

func (s Selection) indexOf(id string) int {
	for i, v := range s {
		if v == id {
			return i
		}
	}
	return -1
}
