// package uniqer keeps the tags of one scan session, unique by epc

package uniqer

import (
	"nurscan/Packages/rfid/models"
)

// Session ordered tags, first read of an epc wins. Not safe for concurrent
// use, the owner goroutine is the only one allowed to call it.
type Session struct {
	tags  []models.Tag
	index map[string]int // epc -> position in tags
}

func NewSession() *Session {
	return &Session{index: map[string]int{}}
}

// IsDuplicate reports whether a tag with the same epc is already in the session.
func (s *Session) IsDuplicate(t models.Tag) bool {
	_, ok := s.index[t.EPC]
	return ok
}

// Add appends t unless its epc was seen before. Later reads are dropped
// entirely, rssi and timestamp of the first read are kept.
func (s *Session) Add(t models.Tag) bool {
	if s.IsDuplicate(t) {
		return false
	}

	s.index[t.EPC] = len(s.tags)
	s.tags = append(s.tags, t)
	return true
}

func (s *Session) Len() int { return len(s.tags) }

// At returns the tag at row i in arrival order.
func (s *Session) At(i int) (models.Tag, bool) {
	if i < 0 || i >= len(s.tags) {
		return models.Tag{}, false
	}
	return s.tags[i], true
}

func (s *Session) Lookup(epc string) (models.Tag, bool) {
	i, ok := s.index[epc]
	if !ok {
		return models.Tag{}, false
	}
	return s.tags[i], true
}

// Tags copy of the session in arrival order
func (s *Session) Tags() []models.Tag {
	out := make([]models.Tag, len(s.tags))
	copy(out, s.tags)
	return out
}

func (s *Session) Reset() {
	s.tags = nil
	s.index = map[string]int{}
}
