package roster

import "strings"

// tokenSet is an ordered set of status tokens. Membership is exact-match
// on whole tokens; the comma-joined display form exists only at the
// serialization boundary.
type tokenSet struct {
	tokens []string
}

func parseTokenSet(joined string) tokenSet {
	var s tokenSet
	for _, tok := range strings.Split(joined, ",") {
		s.Add(strings.TrimSpace(tok))
	}
	return s
}

// Add inserts the token at the end of the set. Adding an empty token or
// one already present is a no-op; the return reports whether the set
// changed.
func (s *tokenSet) Add(tok string) bool {
	if tok == "" || s.Has(tok) {
		return false
	}
	s.tokens = append(s.tokens, tok)
	return true
}

// Remove deletes exactly one occurrence of the token, preserving the
// order of the rest.
func (s *tokenSet) Remove(tok string) bool {
	for i, t := range s.tokens {
		if t == tok {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			return true
		}
	}
	return false
}

func (s *tokenSet) Has(tok string) bool {
	for _, t := range s.tokens {
		if t == tok {
			return true
		}
	}
	return false
}

func (s *tokenSet) Len() int {
	return len(s.tokens)
}

// Tokens returns a copy of the tokens in insertion order.
func (s *tokenSet) Tokens() []string {
	return append([]string(nil), s.tokens...)
}

// String renders the display form, e.g. "Stressed, Hungry".
func (s *tokenSet) String() string {
	return strings.Join(s.tokens, ", ")
}
