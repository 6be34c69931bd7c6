package events

import (
	"time"

	"nurscan/Packages/rfid/models"
	"nurscan/pkg/reader"
)

// Update is what the scan worker hands to the presentation side:
// ScanStarted, ScanStopped or TagsDecoded, in the order they happened.
type Update interface {
	update()
}

type ScanStarted struct {
	Mode reader.Mode
	At   time.Time
}

type ScanStopped struct {
	Mode reader.Mode
	At   time.Time
}

// TagsDecoded one batch in reader order, duplicates not filtered yet.
type TagsDecoded struct {
	Mode reader.Mode
	Tags []models.Tag
}

func (ScanStarted) update() {}
func (ScanStopped) update() {}
func (TagsDecoded) update() {}
