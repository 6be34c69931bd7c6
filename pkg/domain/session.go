package domain

import (
	"time"

	"github.com/segmentio/ksuid"

	"nurscan/Packages/rfid/models"
)

const SessionEntity = "SESSION"

// ScanSession one start..stop run of the inventory and the tags it found.
// a session is opened on scan start and archived on stop or teardown
type ScanSession struct {
	ID        string       `json:"id" msgpack:"id"`
	Mode      string       `json:"mode" msgpack:"mode"`
	StartedAt time.Time    `json:"started_at" msgpack:"started_at"`
	StoppedAt time.Time    `json:"stopped_at,omitempty" msgpack:"stopped_at"`
	Active    bool         `json:"active" msgpack:"active"`
	Tags      []models.Tag `json:"tags" msgpack:"tags"`
}

func NewScanSession(mode string, startedAt time.Time) *ScanSession {
	return &ScanSession{
		ID:        ksuid.New().String(),
		Mode:      mode,
		StartedAt: startedAt,
		Active:    true,
		Tags:      []models.Tag{}, // just for not nil
	}
}

// Close marks the session finished with a copy of its tags.
func (s *ScanSession) Close(tags []models.Tag, at time.Time) {
	s.Tags = append([]models.Tag{}, tags...)
	s.StoppedAt = at
	s.Active = false
}
