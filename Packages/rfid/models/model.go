package models

import (
	"fmt"
)

const (
	MaxEPCLength  = 62 // epc buffer capacity in bytes
	MaxDataLength = 62 // extra data (tid / user memory) capacity in bytes
)

// TagRecord raw inventory record as the reader reports it
type TagRecord struct {
	Timestamp  uint64 // reader clock ticks
	RSSI       int8
	ScaledRSSI int8
	AntennaID  uint8
	Channel    uint8
	Frequency  uint32 // kHz

	EPCLen int
	EPC    [MaxEPCLength]byte

	DataLen int // zero when the scan did not read an extra bank
	Data    [MaxDataLength]byte
}

// Tag decoded tag, EPC is the identity key inside a scan session
type Tag struct {
	EPC        string `json:"epc" msgpack:"epc"`
	RSSI       int8   `json:"rssi" msgpack:"rssi"`
	ScaledRSSI int8   `json:"scaled_rssi" msgpack:"scaled_rssi"`
	AntennaID  uint8  `json:"antenna_id" msgpack:"antenna_id"`
	Timestamp  uint64 `json:"timestamp" msgpack:"timestamp"`
	Frequency  uint32 `json:"frequency" msgpack:"frequency"`
	Channel    uint8  `json:"channel" msgpack:"channel"`
	TID        string `json:"tid,omitempty" msgpack:"tid,omitempty"`
}

func (t Tag) String() string {
	return fmt.Sprintf("epc: %v, tid: %v, rssi: %v (%v), antenna: %v, freq: %v, ch: %v, ts: %v",
		t.EPC,
		t.TID,
		t.RSSI,
		t.ScaledRSSI,
		t.AntennaID,
		t.Frequency,
		t.Channel,
		t.Timestamp,
	)
}
