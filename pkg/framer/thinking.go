package framer

import "strings"

const (
	openThinkTag  = "<think>"
	closeThinkTag = "</think>"
)

// thinkSplitter routes the portions of a token stream wrapped in
// <think> tags to the thinking channel and everything else to the
// answer channel. Tags may split across chunk boundaries, so a
// possible partial tag is held back until disambiguated.
type thinkSplitter struct {
	pending string
	inThink bool
}

// feed consumes one raw chunk and returns what can be safely emitted
func (s *thinkSplitter) feed(chunk string) (thinking, text string) {
	s.pending += chunk

	var thinkOut, textOut strings.Builder
	for {
		if s.inThink {
			if idx := strings.Index(s.pending, closeThinkTag); idx >= 0 {
				thinkOut.WriteString(s.pending[:idx])
				s.pending = s.pending[idx+len(closeThinkTag):]
				s.inThink = false
				continue
			}
			hold := partialTagLen(s.pending, closeThinkTag)
			thinkOut.WriteString(s.pending[:len(s.pending)-hold])
			s.pending = s.pending[len(s.pending)-hold:]
			return thinkOut.String(), textOut.String()
		}

		if idx := strings.Index(s.pending, openThinkTag); idx >= 0 {
			textOut.WriteString(s.pending[:idx])
			s.pending = s.pending[idx+len(openThinkTag):]
			s.inThink = true
			continue
		}
		hold := partialTagLen(s.pending, openThinkTag)
		textOut.WriteString(s.pending[:len(s.pending)-hold])
		s.pending = s.pending[len(s.pending)-hold:]
		return thinkOut.String(), textOut.String()
	}
}

// flush drains whatever is still held back at end of stream
func (s *thinkSplitter) flush() (thinking, text string) {
	rest := s.pending
	s.pending = ""
	if s.inThink {
		return rest, ""
	}
	return "", rest
}

// partialTagLen returns the length of the longest suffix of s that is
// a proper prefix of tag
func partialTagLen(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
