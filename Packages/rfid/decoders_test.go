package rfid

import (
	"errors"
	"regexp"
	"testing"

	"nurscan/Packages/rfid/models"
)

var upperHex = regexp.MustCompile(`^[0-9A-F]*$`)

func record(epc []byte) models.TagRecord {
	rec := models.TagRecord{
		Timestamp:  123456789,
		RSSI:       -61,
		ScaledRSSI: 72,
		AntennaID:  2,
		Channel:    17,
		Frequency:  866300,
		EPCLen:     len(epc),
	}
	copy(rec.EPC[:], epc)
	return rec
}

func TestDecodeRecord(t *testing.T) {
	tag, err := DecodeRecord(record([]byte{0xE2, 0x00, 0x11, 0x22}))
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}

	if tag.EPC != "E2001122" {
		t.Errorf("epc: got %q, want %q", tag.EPC, "E2001122")
	}
	if tag.RSSI != -61 || tag.ScaledRSSI != 72 {
		t.Errorf("rssi: got %d/%d, want -61/72", tag.RSSI, tag.ScaledRSSI)
	}
	if tag.AntennaID != 2 || tag.Channel != 17 || tag.Frequency != 866300 || tag.Timestamp != 123456789 {
		t.Errorf("numeric fields not copied through: %v", tag)
	}
	if tag.TID != "" {
		t.Errorf("tid: got %q, want empty", tag.TID)
	}
}

func TestDecodeRecordLengths(t *testing.T) {
	for n := 0; n <= models.MaxEPCLength; n++ {
		epc := make([]byte, n)
		for i := range epc {
			epc[i] = byte(i*37 + 0x0A)
		}

		tag, err := DecodeRecord(record(epc))
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if len(tag.EPC) != 2*n {
			t.Errorf("len %d: epc string length %d", n, len(tag.EPC))
		}
		if !upperHex.MatchString(tag.EPC) {
			t.Errorf("len %d: epc %q is not uppercase hex", n, tag.EPC)
		}
	}
}

func TestDecodeRecordZeroPadsBytes(t *testing.T) {
	tag, err := DecodeRecord(record([]byte{0x00, 0x0F, 0xA0}))
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if tag.EPC != "000FA0" {
		t.Errorf("epc: got %q, want %q", tag.EPC, "000FA0")
	}
}

func TestDecodeRecordDeterministic(t *testing.T) {
	rec := record([]byte{0xAB, 0xCD, 0xEF, 0x01, 0x23})

	first, err := DecodeRecord(rec)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := DecodeRecord(rec)
		if again != first {
			t.Fatalf("decode %d: got %v, want %v", i, again, first)
		}
	}
}

func TestDecodeRecordTID(t *testing.T) {
	rec := record([]byte{0x30, 0x08})
	tid := []byte{0xE2, 0x80, 0x11, 0x05, 0x20, 0x00, 0x7a, 0x3b, 0x00, 0x00, 0x00, 0x01}
	copy(rec.Data[:], tid)
	rec.DataLen = len(tid)

	tag, err := DecodeRecord(rec)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if tag.TID != "E280110520007A3B00000001" {
		t.Errorf("tid: got %q", tag.TID)
	}
	if tag.EPC != "3008" {
		t.Errorf("epc: got %q", tag.EPC)
	}
}

func TestDecodeRecordMalformed(t *testing.T) {
	tests := []struct {
		name    string
		epcLen  int
		dataLen int
	}{
		{"epc over capacity", models.MaxEPCLength + 1, 0},
		{"epc way over capacity", 255, 0},
		{"negative epc", -1, 0},
		{"data over capacity", 4, models.MaxDataLength + 1},
		{"negative data", 4, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(nil)
			rec.EPCLen = tt.epcLen
			rec.DataLen = tt.dataLen

			tag, err := DecodeRecord(rec)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
			if tag != (models.Tag{}) {
				t.Errorf("expected zero tag on failure, got %v", tag)
			}
		})
	}
}
