// Package sim is an in-process reader that invents tags from a fixed epc
// population. Stream rounds end by themselves after a number of rounds, as
// real readers do, so the re-arm path gets exercised without hardware.
package sim

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nurscan/Packages/rfid"
	"nurscan/Packages/rfid/models"
	"nurscan/pkg/reader"
)

var (
	ErrBusy       = errors.New("inventory already running")
	ErrNotRunning = errors.New("inventory not running")
)

type Config struct {
	Population     int           // distinct tags in the field
	BatchSize      int           // reads per round
	Interval       time.Duration // time between rounds
	StreamRounds   int           // rounds before a stream stops itself, 0 never
	MalformedEvery int           // every nth read has a broken epc length, 0 never
	Seed           int64
}

func DefaultConfig() Config {
	return Config{
		Population:   40,
		BatchSize:    8,
		Interval:     250 * time.Millisecond,
		StreamRounds: 20,
		Seed:         time.Now().UnixNano(),
	}
}

type Reader struct {
	cfg   Config
	start time.Time
	notes chan reader.Notification

	mu       sync.Mutex
	rng      *rand.Rand
	epcs     [][]byte
	tids     [][]byte
	mode     reader.Mode
	running  bool
	stopCh   chan struct{}
	read     reader.ReadConfig
	storage  []models.TagRecord
	locked   bool
	produced int
}

func New(cfg Config) *Reader {
	if cfg.Population <= 0 {
		cfg.Population = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}

	r := &Reader{
		cfg:   cfg,
		start: time.Now(),
		notes: make(chan reader.Notification, 16),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}

	for i := 0; i < cfg.Population; i++ {
		epc := make([]byte, 12)
		epc[0] = 0xE2
		r.rng.Read(epc[1:])
		r.epcs = append(r.epcs, epc)

		tid := make([]byte, 12)
		copy(tid, []byte{0xE2, 0x80, 0x11, 0x05})
		r.rng.Read(tid[4:])
		r.tids = append(r.tids, tid)
	}

	return r
}

func (r *Reader) StartStream(p reader.Params) error {
	return r.begin(reader.ModeStream)
}

func (r *Reader) StopStream() error {
	return r.end(reader.ModeStream)
}

func (r *Reader) ConfigureRead(rc reader.ReadConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(rc.Words)*2 > models.MaxDataLength {
		return errors.New("read length exceeds data capacity")
	}
	r.read = rc
	return nil
}

func (r *Reader) StartExtended(p reader.Params, filters []reader.Filter) error {
	return r.begin(reader.ModeExtended)
}

func (r *Reader) StopExtended() error {
	return r.end(reader.ModeExtended)
}

func (r *Reader) Running(m reader.Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && r.mode == m
}

func (r *Reader) TagCount() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.storage), nil
}

func (r *Reader) FetchTags(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(buf) / rfid.RecordSize
	if n == 0 && len(r.storage) > 0 {
		return 0, reader.ErrBufferTooSmall
	}
	if n > len(r.storage) {
		n = len(r.storage)
	}

	out := buf[:0]
	for _, rec := range r.storage[:n] {
		out = rfid.AppendRecord(out, rec)
	}
	return n, nil
}

func (r *Reader) LockTagStorage(lock bool) error {
	r.mu.Lock()
	r.locked = lock
	r.mu.Unlock()
	return nil
}

func (r *Reader) ClearTags() error {
	r.mu.Lock()
	r.storage = nil
	r.mu.Unlock()
	return nil
}

func (r *Reader) Notifications() <-chan reader.Notification {
	return r.notes
}

// Close stops whatever inventory is running.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		close(r.stopCh)
		r.running = false
	}
	return nil
}

func (r *Reader) begin(m reader.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrBusy
	}

	r.mode = m
	r.running = true
	r.stopCh = make(chan struct{})

	go r.loop(m, r.stopCh)

	log.Debug().Stringer("mode", m).Msg("sim inventory started")
	return nil
}

func (r *Reader) end(m reader.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.mode != m {
		return ErrNotRunning
	}

	close(r.stopCh)
	r.running = false

	log.Debug().Stringer("mode", m).Msg("sim inventory stopped")
	return nil
}

func (r *Reader) loop(m reader.Mode, stop <-chan struct{}) {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()

	for rounds := 1; ; rounds++ {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		var n reader.Notification
		last := false

		switch m {
		case reader.ModeStream:
			last = r.cfg.StreamRounds > 0 && rounds >= r.cfg.StreamRounds
			n = r.streamRound(stop, last)
		case reader.ModeExtended:
			n = r.extendedRound(stop)
		}

		if n == nil {
			continue
		}

		select {
		case r.notes <- n:
		case <-stop:
			return
		}

		if last {
			return
		}
	}
}

func (r *Reader) streamRound(stop <-chan struct{}, last bool) reader.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	// stop raced with the tick
	if isClosed(stop) {
		return nil
	}

	var payload []byte
	for i := 0; i < r.cfg.BatchSize; i++ {
		payload = rfid.AppendRecord(payload, r.nextRecord(false))
	}

	if last {
		r.running = false
	}

	return reader.StreamBatch{
		Timestamp: r.millis(),
		Count:     r.cfg.BatchSize,
		Payload:   payload,
		Stopped:   last,
	}
}

func (r *Reader) extendedRound(stop <-chan struct{}) reader.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	if isClosed(stop) || r.locked {
		return nil
	}

	withData := r.read.Enabled
	for i := 0; i < r.cfg.BatchSize; i++ {
		r.storage = append(r.storage, r.nextRecord(withData))
	}

	return reader.ExtendedBatch{
		Timestamp: r.millis(),
		Count:     len(r.storage),
	}
}

// nextRecord caller holds mu
func (r *Reader) nextRecord(withData bool) models.TagRecord {
	i := r.rng.Intn(len(r.epcs))
	channel := r.rng.Intn(4)
	rssi := -30 - r.rng.Intn(50)

	rec := models.TagRecord{
		Timestamp:  uint64(time.Since(r.start).Milliseconds()),
		RSSI:       int8(rssi),
		ScaledRSSI: int8((rssi + 80) * 2),
		AntennaID:  uint8(r.rng.Intn(4)),
		Channel:    uint8(channel),
		Frequency:  uint32(865700 + channel*600),
		EPCLen:     len(r.epcs[i]),
	}
	copy(rec.EPC[:], r.epcs[i])

	if withData {
		n := int(r.read.Words) * 2
		if n > len(r.tids[i]) {
			n = len(r.tids[i])
		}
		rec.DataLen = n
		copy(rec.Data[:], r.tids[i][:n])
	}

	r.produced++
	if r.cfg.MalformedEvery > 0 && r.produced%r.cfg.MalformedEvery == 0 {
		rec.EPCLen = 0xFF
	}

	return rec
}

func (r *Reader) millis() uint32 {
	return uint32(time.Since(r.start).Milliseconds())
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
