// Package reader describes the RFID reader collaborator: inventory control,
// tag storage access and the notification feed. Implementations wrap a vendor
// SDK; package sim provides an in-process one.
package reader

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBufferTooSmall = errors.New("buffer too small for tag storage")

// Mode selects which inventory primitive drives a scan.
type Mode int

const (
	// ModeStream continuous inventory, the reader stops by itself after a
	// while and reports it in the batch notification.
	ModeStream Mode = iota
	// ModeExtended filtered inventory that also reads an extra memory bank.
	ModeExtended
)

func (m Mode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeExtended:
		return "extended"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stream", "":
		return ModeStream, nil
	case "extended", "ex", "tid":
		return ModeExtended, nil
	default:
		return 0, fmt.Errorf("unknown inventory mode %q", s)
	}
}

type Target int

const (
	TargetA Target = iota
	TargetB
	TargetAB
)

type SelectState int

const (
	SelectAll SelectState = iota
	SelectNotSL
	SelectSL
)

// Bank tag memory bank
type Bank uint8

const (
	BankPasswd Bank = iota
	BankEPC
	BankTID
	BankUser
)

// Params inventory round parameters, zero Q / session / rounds let the
// reader use its defaults.
type Params struct {
	Q           int
	Session     int
	Rounds      int
	TransitTime int
	Target      Target
	SelectState SelectState
}

// Filter restricts an extended inventory to tags matching Mask in Bank.
type Filter struct {
	Bank     Bank
	Address  uint32
	Mask     []byte
	Truncate bool
}

// ReadConfig extra bank read during extended inventory, Words in 16 bit words.
type ReadConfig struct {
	Enabled bool
	Bank    Bank
	Address uint32
	Words   uint32
}

// Reader is the vendor SDK surface. Every call reports failure through its
// error, Running is a plain flag query.
type Reader interface {
	StartStream(p Params) error
	StopStream() error

	ConfigureRead(rc ReadConfig) error
	StartExtended(p Params, filters []Filter) error
	StopExtended() error

	Running(m Mode) bool

	// TagCount number of records waiting in reader tag storage.
	TagCount() (int, error)
	// FetchTags copies stored records into buf back to back and returns how
	// many were written.
	FetchTags(buf []byte) (int, error)
	LockTagStorage(lock bool) error
	ClearTags() error

	Notifications() <-chan Notification
}

// Notification is one of StreamBatch, ExtendedBatch or Other.
type Notification interface {
	notification()
}

// StreamBatch tags read by a stream round, Payload holds Count records.
type StreamBatch struct {
	Timestamp uint32
	Count     int
	Payload   []byte
	// Stopped the reader ended the stream after this round
	Stopped bool
}

// ExtendedBatch an extended round finished, records wait in tag storage.
type ExtendedBatch struct {
	Timestamp uint32
	Count     int
}

// Other any notification this package does not model.
type Other struct {
	Timestamp uint32
	Type      int32
	Payload   []byte
}

func (StreamBatch) notification()   {}
func (ExtendedBatch) notification() {}
func (Other) notification()         {}
