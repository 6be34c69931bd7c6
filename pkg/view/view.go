// Package view is the presentation side of a scan: it drains the scan
// worker's updates, keeps the session table and serves read-only snapshots.
// Run is the only goroutine that changes the session.
package view

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nurscan/Packages/rfid/models"
	"nurscan/Packages/rfid/uniqer"
	"nurscan/pkg/domain"
	"nurscan/pkg/events"
	"nurscan/pkg/metrics"
	"nurscan/pkg/publish"
	"nurscan/pkg/reader"
)

const subscriberBuffer = 64

type Archive interface {
	Save(s domain.ScanSession) error
}

// Change pushed to live subscribers
type Change struct {
	Kind      string      `json:"kind"` // started, stopped, tag
	Scanning  bool        `json:"scanning"`
	Count     int         `json:"count"`
	SessionID string      `json:"session_id,omitempty"`
	Tag       *models.Tag `json:"tag,omitempty"`
}

type State struct {
	Scanning  bool   `json:"scanning"`
	Mode      string `json:"mode"`
	Count     int    `json:"count"`
	SessionID string `json:"session_id,omitempty"`
	Button    string `json:"button"` // label of the toggle
}

type View struct {
	archive Archive
	pub     publish.Publisher
	metrics *metrics.Metrics

	mu       sync.RWMutex
	mode     reader.Mode
	session  *uniqer.Session
	current  *domain.ScanSession
	scanning bool

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

func New(mode reader.Mode, archive Archive, pub publish.Publisher, m *metrics.Metrics) *View {
	if pub == nil {
		pub = publish.Nop{}
	}
	return &View{
		archive: archive,
		pub:     pub,
		metrics: m,
		mode:    mode,
		session: uniqer.NewSession(),
		subs:    map[chan Change]struct{}{},
	}
}

// Run applies updates until ctx is done or in is closed, then tears the
// session down.
func (v *View) Run(ctx context.Context, in <-chan events.Update) {
	defer v.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in:
			if !ok {
				return
			}
			v.apply(ctx, u)
		}
	}
}

func (v *View) apply(ctx context.Context, u events.Update) {
	switch u := u.(type) {
	case events.ScanStarted:
		v.started(u)
	case events.ScanStopped:
		v.stopped(u)
	case events.TagsDecoded:
		v.tags(ctx, u)
	default:
		log.Warn().Msgf("unknown update %T", u)
	}
}

func (v *View) started(u events.ScanStarted) {
	v.mu.Lock()
	prev := v.closeCurrent(u.At)
	v.session.Reset()
	v.current = domain.NewScanSession(u.Mode.String(), u.At)
	v.mode = u.Mode
	v.scanning = true
	id := v.current.ID
	v.mu.Unlock()

	v.save(prev)
	v.metrics.SessionTags.Set(0)

	log.Info().Str("session", id).Stringer("mode", u.Mode).Msg("scan session opened")
	v.notify(Change{Kind: "started", Scanning: true, SessionID: id})
}

func (v *View) stopped(u events.ScanStopped) {
	v.mu.Lock()
	v.scanning = false
	closed := v.closeCurrent(u.At)
	count := v.session.Len()
	v.mu.Unlock()

	v.save(closed)

	c := Change{Kind: "stopped", Count: count}
	if closed != nil {
		c.SessionID = closed.ID
	}
	v.notify(c)
}

func (v *View) tags(ctx context.Context, u events.TagsDecoded) {
	for _, tag := range u.Tags {
		v.mu.Lock()
		added := v.session.Add(tag)
		count := v.session.Len()
		scanning := v.scanning
		var sessionID string
		if v.current != nil {
			sessionID = v.current.ID
		}
		v.mu.Unlock()

		if !added {
			v.metrics.DuplicatesDropped.Inc()
			continue
		}
		v.metrics.SessionTags.Set(float64(count))

		if err := v.pub.Publish(ctx, domain.NewTagEvent(sessionID, tag, time.Now())); err != nil {
			v.metrics.PublishErrors.Inc()
			log.Err(err).Str("epc", tag.EPC).Msg("failed to publish tag")
		}

		tag := tag
		v.notify(Change{Kind: "tag", Scanning: scanning, Count: count, SessionID: sessionID, Tag: &tag})
	}
}

// closeCurrent caller holds mu, returns the session to archive or nil
func (v *View) closeCurrent(at time.Time) *domain.ScanSession {
	if v.current == nil || !v.current.Active {
		return nil
	}
	v.current.Close(v.session.Tags(), at)
	return v.current
}

func (v *View) save(s *domain.ScanSession) {
	if s == nil || v.archive == nil {
		return
	}

	if err := v.archive.Save(*s); err != nil {
		log.Err(err).Str("session", s.ID).Msg("failed to archive session")
		return
	}
	v.metrics.SessionsArchived.Inc()
	log.Info().Str("session", s.ID).Int("tags", len(s.Tags)).Msg("scan session archived")
}

func (v *View) teardown() {
	v.mu.Lock()
	v.scanning = false
	closed := v.closeCurrent(time.Now())
	v.session.Reset()
	v.mu.Unlock()

	v.save(closed)
	v.metrics.SessionTags.Set(0)

	v.subMu.Lock()
	for ch := range v.subs {
		close(ch)
		delete(v.subs, ch)
	}
	v.subMu.Unlock()
}

// Subscribe returns a feed of changes and a func to leave it. Slow
// subscribers lose changes instead of holding the view up.
func (v *View) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	v.subMu.Lock()
	v.subs[ch] = struct{}{}
	v.subMu.Unlock()

	return ch, func() {
		v.subMu.Lock()
		defer v.subMu.Unlock()
		if _, ok := v.subs[ch]; ok {
			delete(v.subs, ch)
			close(ch)
		}
	}
}

func (v *View) notify(c Change) {
	v.subMu.Lock()
	defer v.subMu.Unlock()

	for ch := range v.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (v *View) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session.Len()
}

// Tags table rows in arrival order
func (v *View) Tags() []models.Tag {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session.Tags()
}

// Tag detail of the selected row
func (v *View) Tag(row int) (models.Tag, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session.At(row)
}

func (v *View) Lookup(epc string) (models.Tag, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session.Lookup(epc)
}

func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := State{
		Scanning: v.scanning,
		Mode:     v.mode.String(),
		Count:    v.session.Len(),
		Button:   "Start",
	}
	if v.scanning {
		s.Button = "Stop"
	}
	if v.current != nil {
		s.SessionID = v.current.ID
	}
	return s
}
