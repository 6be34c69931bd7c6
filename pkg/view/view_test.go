package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"nurscan/Packages/rfid/models"
	"nurscan/pkg/domain"
	"nurscan/pkg/events"
	"nurscan/pkg/metrics"
	"nurscan/pkg/reader"
)

type memArchive struct {
	mu       sync.Mutex
	sessions []domain.ScanSession
}

func (a *memArchive) Save(s domain.ScanSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, s)
	return nil
}

func (a *memArchive) saved() []domain.ScanSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ScanSession(nil), a.sessions...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TagEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.TagEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []domain.TagEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TagEvent(nil), p.events...)
}

type harness struct {
	view    *View
	in      chan events.Update
	archive *memArchive
	pub     *recordingPublisher
	m       *metrics.Metrics
	cancel  context.CancelFunc
	done    chan struct{}
}

func run(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		in:      make(chan events.Update),
		archive: &memArchive{},
		pub:     &recordingPublisher{},
		m:       metrics.New(prometheus.NewRegistry()),
		done:    make(chan struct{}),
	}
	h.view = New(reader.ModeStream, h.archive, h.pub, h.m)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.view.Run(ctx, h.in)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// send hands u to Run; the next send (or sync) only returns once u was applied
func (h *harness) send(u events.Update) {
	h.in <- u
}

// sync waits until everything sent before was applied
func (h *harness) sync() {
	h.in <- events.TagsDecoded{}
}

func tags(epcs ...string) []models.Tag {
	out := make([]models.Tag, len(epcs))
	for i, e := range epcs {
		out[i] = models.Tag{EPC: e, RSSI: int8(-40 - i)}
	}
	return out
}

func TestDedupKeepsFirstRead(t *testing.T) {
	h := run(t)

	h.send(events.ScanStarted{Mode: reader.ModeStream, At: time.Now()})
	h.send(events.TagsDecoded{Tags: []models.Tag{{EPC: "E2001122", RSSI: -40, Timestamp: 1}}})
	h.send(events.TagsDecoded{Tags: []models.Tag{{EPC: "E2001122", RSSI: -10, Timestamp: 2}}})
	h.sync()

	if got := h.view.Count(); got != 1 {
		t.Fatalf("count: got %d, want 1", got)
	}
	tag, ok := h.view.Tag(0)
	if !ok || tag.RSSI != -40 || tag.Timestamp != 1 {
		t.Errorf("row 0: got %v, want first read", tag)
	}
	if v := testutil.ToFloat64(h.m.DuplicatesDropped); v != 1 {
		t.Errorf("duplicates counter: %v", v)
	}
	if got := len(h.pub.published()); got != 1 {
		t.Errorf("published %d events, want 1", got)
	}
}

func TestBatchOrder(t *testing.T) {
	h := run(t)

	h.send(events.ScanStarted{At: time.Now()})
	h.send(events.TagsDecoded{Tags: tags("E2001122", "AABBCCDD")})
	h.sync()

	rows := h.view.Tags()
	if len(rows) != 2 || rows[0].EPC != "E2001122" || rows[1].EPC != "AABBCCDD" {
		t.Errorf("rows: %v", rows)
	}
	if tag, ok := h.view.Lookup("AABBCCDD"); !ok || tag.RSSI != -41 {
		t.Errorf("lookup: %v %v", tag, ok)
	}
}

func TestStateFollowsScan(t *testing.T) {
	h := run(t)

	if st := h.view.State(); st.Scanning || st.Button != "Start" || st.Mode != "stream" {
		t.Errorf("initial state: %+v", st)
	}

	h.send(events.ScanStarted{Mode: reader.ModeExtended, At: time.Now()})
	h.sync()

	st := h.view.State()
	if !st.Scanning || st.Button != "Stop" || st.Mode != "extended" || st.SessionID == "" {
		t.Errorf("scanning state: %+v", st)
	}

	h.send(events.ScanStopped{Mode: reader.ModeExtended, At: time.Now()})
	h.sync()

	if st := h.view.State(); st.Scanning || st.Button != "Start" {
		t.Errorf("stopped state: %+v", st)
	}
}

func TestRestartClearsSessionAndArchives(t *testing.T) {
	h := run(t)

	h.send(events.ScanStarted{At: time.Now()})
	h.send(events.TagsDecoded{Tags: tags("01", "02")})
	h.send(events.ScanStopped{At: time.Now()})
	h.sync()

	// table keeps showing the last session while idle
	if got := h.view.Count(); got != 2 {
		t.Fatalf("count after stop: %d", got)
	}

	saved := h.archive.saved()
	if len(saved) != 1 || len(saved[0].Tags) != 2 || saved[0].Active {
		t.Fatalf("archive: %+v", saved)
	}

	h.send(events.ScanStarted{At: time.Now()})
	h.sync()

	if got := h.view.Count(); got != 0 {
		t.Errorf("count after restart: %d", got)
	}
	if st := h.view.State(); st.SessionID == saved[0].ID {
		t.Error("restart must open a new session")
	}

	// same epc is new again in the new session
	h.send(events.TagsDecoded{Tags: tags("01")})
	h.sync()
	if got := h.view.Count(); got != 1 {
		t.Errorf("count: %d", got)
	}
}

func TestTeardownArchivesAndClears(t *testing.T) {
	h := run(t)
	feed, _ := h.view.Subscribe()

	h.send(events.ScanStarted{At: time.Now()})
	h.send(events.TagsDecoded{Tags: tags("01")})
	h.sync()

	h.cancel()
	<-h.done

	if got := h.view.Count(); got != 0 {
		t.Errorf("count after teardown: %d", got)
	}
	if saved := h.archive.saved(); len(saved) != 1 {
		t.Errorf("archive after teardown: %d sessions", len(saved))
	}

	// feed drains then closes
	for range feed {
	}
}

func TestSubscribeFeed(t *testing.T) {
	h := run(t)
	feed, leave := h.view.Subscribe()
	defer leave()

	h.send(events.ScanStarted{At: time.Now()})
	h.send(events.TagsDecoded{Tags: tags("AA", "AA", "BB")})
	h.sync()

	var kinds []string
	var last Change
	for i := 0; i < 3; i++ {
		select {
		case c := <-feed:
			kinds = append(kinds, c.Kind)
			last = c
		case <-time.After(time.Second):
			t.Fatalf("timeout after %v", kinds)
		}
	}

	if kinds[0] != "started" || kinds[1] != "tag" || kinds[2] != "tag" {
		t.Errorf("kinds: %v", kinds)
	}
	if last.Count != 2 || last.Tag == nil || last.Tag.EPC != "BB" {
		t.Errorf("last change: %+v", last)
	}
}

func TestLeaveClosesFeed(t *testing.T) {
	h := run(t)
	feed, leave := h.view.Subscribe()

	leave()
	leave()

	if _, ok := <-feed; ok {
		t.Error("feed must be closed")
	}
}

func TestPublishFailureDoesNotDropTag(t *testing.T) {
	h := run(t)
	h.pub.err = errors.New("broker down")

	h.send(events.TagsDecoded{Tags: tags("01")})
	h.sync()

	if got := h.view.Count(); got != 1 {
		t.Errorf("count: %d", got)
	}
	if v := testutil.ToFloat64(h.m.PublishErrors); v != 1 {
		t.Errorf("publish errors: %v", v)
	}
}
