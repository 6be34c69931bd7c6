package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nurscan/Packages/rfid"
	"nurscan/Packages/rfid/models"
	"nurscan/pkg/metrics"
	"nurscan/pkg/reader"
)

// worker that owns every call into the reader

// TIDWords tid words read in extended mode
const TIDWords = 6

var ErrModeBusy = errors.New("another inventory mode is running")

// Config what a toggle starts
type Config struct {
	Mode    reader.Mode
	Params  reader.Params
	Filters []reader.Filter   // extended mode only
	Read    reader.ReadConfig // extended mode only
}

func DefaultConfig(mode reader.Mode) Config {
	return Config{
		Mode: mode,
		Params: reader.Params{
			Target:      reader.TargetAB,
			SelectState: reader.SelectAll,
		},
		Filters: []reader.Filter{{Bank: reader.BankTID}},
		Read: reader.ReadConfig{
			Enabled: true,
			Bank:    reader.BankTID,
			Words:   TIDWords,
		},
	}
}

type Scanner struct {
	rd      reader.Reader
	cfg     Config
	out     chan<- Update
	metrics *metrics.Metrics
	toggles chan struct{}
	bufs    sync.Pool

	armed bool // scanning was asked for, only the worker touches it
}

func NewScanner(rd reader.Reader, cfg Config, out chan<- Update, m *metrics.Metrics) *Scanner {
	return &Scanner{
		rd:      rd,
		cfg:     cfg,
		out:     out,
		metrics: m,
		toggles: make(chan struct{}, 8),
	}
}

func (s *Scanner) Mode() reader.Mode { return s.cfg.Mode }

// Toggle queues a start or stop for the worker and returns at once.
func (s *Scanner) Toggle() {
	select {
	case s.toggles <- struct{}{}:
	default:
		log.Warn().Msg("toggle queue full, toggle dropped")
	}
}

// Serve runs the worker until ctx is done, then stops a scan it started.
func (s *Scanner) Serve(ctx context.Context) {
	notes := s.rd.Notifications()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return

		case <-s.toggles:
			s.toggle(ctx)

		case n, ok := <-notes:
			if !ok {
				log.Warn().Msg("reader notification feed closed")
				notes = nil
				continue
			}
			s.dispatch(ctx, n)
		}
	}
}

func (s *Scanner) dispatch(ctx context.Context, n reader.Notification) {
	switch n := n.(type) {
	case reader.StreamBatch:
		s.handleStream(ctx, n)
	case reader.ExtendedBatch:
		s.handleExtended(ctx, n)
	case reader.Other:
		log.Debug().Int32("type", n.Type).Int("len", len(n.Payload)).Msg("notification ignored")
	default:
		log.Warn().Str("type", fmt.Sprintf("%T", n)).Msg("unknown notification")
	}
}

// toggle asks the reader, not local state, whether a scan is running.
func (s *Scanner) toggle(ctx context.Context) {
	mode := s.cfg.Mode

	if s.rd.Running(mode) {
		log.Info().Stringer("mode", mode).Msg("stopping inventory")
		if err := s.stop(); err != nil {
			s.fail("stop", err)
			return
		}

		s.armed = false
		s.metrics.Scanning.Set(0)
		s.emit(ctx, ScanStopped{Mode: mode, At: time.Now()})
		return
	}

	log.Info().Stringer("mode", mode).Msg("starting inventory")
	if err := s.start(); err != nil {
		s.fail("start", err)
		return
	}

	s.armed = true
	s.metrics.Scanning.Set(1)
	s.emit(ctx, ScanStarted{Mode: mode, At: time.Now()})
}

func (s *Scanner) start() error {
	other := reader.ModeExtended
	if s.cfg.Mode == reader.ModeExtended {
		other = reader.ModeStream
	}
	if s.rd.Running(other) {
		return fmt.Errorf("%w: %s", ErrModeBusy, other)
	}

	if err := s.rd.ClearTags(); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}

	switch s.cfg.Mode {
	case reader.ModeStream:
		if err := s.rd.StartStream(s.cfg.Params); err != nil {
			return fmt.Errorf("start inventory stream: %w", err)
		}

	case reader.ModeExtended:
		// the extra bank read has to be configured before the inventory starts
		if err := s.rd.ConfigureRead(s.cfg.Read); err != nil {
			return fmt.Errorf("configure inventory read: %w", err)
		}
		if err := s.rd.StartExtended(s.cfg.Params, s.cfg.Filters); err != nil {
			return fmt.Errorf("start inventory ex: %w", err)
		}

	default:
		return fmt.Errorf("unsupported mode %s", s.cfg.Mode)
	}

	return nil
}

func (s *Scanner) stop() error {
	switch s.cfg.Mode {
	case reader.ModeStream:
		if err := s.rd.StopStream(); err != nil {
			return fmt.Errorf("stop inventory stream: %w", err)
		}
	case reader.ModeExtended:
		if err := s.rd.StopExtended(); err != nil {
			return fmt.Errorf("stop inventory ex: %w", err)
		}
	default:
		return fmt.Errorf("unsupported mode %s", s.cfg.Mode)
	}
	return nil
}

func (s *Scanner) handleStream(ctx context.Context, n reader.StreamBatch) {
	s.metrics.Batches.WithLabelValues(reader.ModeStream.String()).Inc()

	if tags := s.decode(n.Payload, n.Count); len(tags) > 0 {
		s.emit(ctx, TagsDecoded{Mode: reader.ModeStream, Tags: tags})
	}

	if n.Stopped {
		s.rearm(ctx)
	}
}

// rearm restarts a stream the reader ended while we still want to scan
func (s *Scanner) rearm(ctx context.Context) {
	if !s.armed || s.cfg.Mode != reader.ModeStream || s.rd.Running(reader.ModeStream) {
		return
	}

	if err := s.rd.StartStream(s.cfg.Params); err != nil {
		s.fail("rearm", fmt.Errorf("restart inventory stream: %w", err))

		s.armed = false
		s.metrics.Scanning.Set(0)
		s.emit(ctx, ScanStopped{Mode: reader.ModeStream, At: time.Now()})
		return
	}

	s.metrics.StreamRearms.Inc()
	log.Debug().Msg("inventory stream restarted")
}

func (s *Scanner) handleExtended(ctx context.Context, n reader.ExtendedBatch) {
	s.metrics.Batches.WithLabelValues(reader.ModeExtended.String()).Inc()

	tags, err := s.drainStorage()
	if err != nil {
		s.fail("fetch", err)
		return
	}

	if len(tags) > 0 {
		s.emit(ctx, TagsDecoded{Mode: reader.ModeExtended, Tags: tags})
	}
}

// drainStorage reads every record waiting in reader storage and clears it.
// The fetch buffer goes back to the pool before returning.
func (s *Scanner) drainStorage() ([]models.Tag, error) {
	if err := s.rd.LockTagStorage(true); err != nil {
		return nil, fmt.Errorf("lock tag storage: %w", err)
	}
	defer func() {
		if err := s.rd.LockTagStorage(false); err != nil {
			s.fail("unlock", fmt.Errorf("unlock tag storage: %w", err))
		}
	}()

	count, err := s.rd.TagCount()
	if err != nil {
		return nil, fmt.Errorf("get tag count: %w", err)
	}
	if count < 1 {
		return nil, nil
	}

	buf := s.acquire(count * rfid.RecordSize)
	defer s.release(buf)

	fetched, err := s.rd.FetchTags(*buf)
	if err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}

	tags := s.decode(*buf, fetched)

	if err := s.rd.ClearTags(); err != nil {
		s.fail("clear", fmt.Errorf("clear tag storage: %w", err))
	}

	return tags, nil
}

func (s *Scanner) decode(payload []byte, count int) []models.Tag {
	tags, err := rfid.DecodeBatch(payload, rfid.RecordSize, count)

	if errors.Is(err, rfid.ErrBatchBounds) {
		s.metrics.BatchesRejected.Inc()
		log.Error().Err(err).Int("count", count).Int("len", len(payload)).Msg("batch rejected")
		return nil
	}

	if err != nil {
		skipped := count - len(tags)
		s.metrics.RecordsMalformed.Add(float64(skipped))
		log.Warn().Err(err).Int("skipped", skipped).Msg("malformed tag records skipped")
	}

	s.metrics.RecordsDecoded.Add(float64(len(tags)))
	return tags
}

func (s *Scanner) acquire(size int) *[]byte {
	if p, ok := s.bufs.Get().(*[]byte); ok && cap(*p) >= size {
		*p = (*p)[:size]
		return p
	}

	b := make([]byte, size)
	return &b
}

func (s *Scanner) release(p *[]byte) {
	s.bufs.Put(p)
}

func (s *Scanner) emit(ctx context.Context, u Update) {
	select {
	case s.out <- u:
	case <-ctx.Done():
	}
}

func (s *Scanner) fail(op string, err error) {
	s.metrics.ReaderErrors.WithLabelValues(op).Inc()
	log.Err(err).Str("op", op).Stringer("mode", s.cfg.Mode).Msg("reader call failed")
}

func (s *Scanner) shutdown() {
	if !s.armed || !s.rd.Running(s.cfg.Mode) {
		return
	}

	if err := s.stop(); err != nil {
		s.fail("stop", err)
		return
	}
	s.armed = false
	s.metrics.Scanning.Set(0)

	log.Info().Stringer("mode", s.cfg.Mode).Msg("inventory stopped on shutdown")
}
