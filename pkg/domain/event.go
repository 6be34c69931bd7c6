package domain

import (
	"time"

	"github.com/segmentio/ksuid"

	"nurscan/Packages/rfid/models"
)

const TagEventEntity = "TAG"

// TagEvent first read of a tag within a session, handed to the sinks
type TagEvent struct {
	ID        string     `json:"id" msgpack:"id"`
	SessionID string     `json:"session_id" msgpack:"session_id"`
	Tag       models.Tag `json:"tag" msgpack:"tag"`
	SeenAt    time.Time  `json:"seen_at" msgpack:"seen_at"` // service clock, the reader clock is in Tag.Timestamp
}

func NewTagEvent(sessionID string, tag models.Tag, seenAt time.Time) TagEvent {
	return TagEvent{
		ID:        ksuid.New().String(),
		SessionID: sessionID,
		Tag:       tag,
		SeenAt:    seenAt,
	}
}
