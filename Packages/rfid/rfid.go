package rfid

import (
	"encoding/binary"
	"errors"
	"fmt"

	"nurscan/Packages/rfid/models"
)

// record layout, little endian
const (
	offTimestamp  = 0
	offRSSI       = 8
	offScaledRSSI = 9
	offAntenna    = 10
	offChannel    = 11
	offFrequency  = 12
	offEPCLen     = 16
	offEPC        = 17
	offDataLen    = offEPC + models.MaxEPCLength
	offData       = offDataLen + 1

	// RecordSize is the stride of one record inside a reader payload.
	RecordSize = offData + models.MaxDataLength
)

var (
	ErrShortRecord = errors.New("tag record shorter than record size")
	ErrBatchBounds = errors.New("batch exceeds payload bounds")
)

// RecordError a record skipped while decoding a batch
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// UnmarshalRecord copies one record out of b.
func UnmarshalRecord(b []byte) (models.TagRecord, error) {
	if len(b) < RecordSize {
		return models.TagRecord{}, fmt.Errorf("%w: %d < %d", ErrShortRecord, len(b), RecordSize)
	}

	rec := models.TagRecord{
		Timestamp:  binary.LittleEndian.Uint64(b[offTimestamp:]),
		RSSI:       int8(b[offRSSI]),
		ScaledRSSI: int8(b[offScaledRSSI]),
		AntennaID:  b[offAntenna],
		Channel:    b[offChannel],
		Frequency:  binary.LittleEndian.Uint32(b[offFrequency:]),
		EPCLen:     int(b[offEPCLen]),
		DataLen:    int(b[offDataLen]),
	}
	copy(rec.EPC[:], b[offEPC:offEPC+models.MaxEPCLength])
	copy(rec.Data[:], b[offData:offData+models.MaxDataLength])

	return rec, nil
}

// AppendRecord appends the wire form of rec to dst. Length fields are written
// as a single byte each, as the reader does.
func AppendRecord(dst []byte, rec models.TagRecord) []byte {
	var b [RecordSize]byte

	binary.LittleEndian.PutUint64(b[offTimestamp:], rec.Timestamp)
	b[offRSSI] = byte(rec.RSSI)
	b[offScaledRSSI] = byte(rec.ScaledRSSI)
	b[offAntenna] = rec.AntennaID
	b[offChannel] = rec.Channel
	binary.LittleEndian.PutUint32(b[offFrequency:], rec.Frequency)
	b[offEPCLen] = byte(rec.EPCLen)
	copy(b[offEPC:], rec.EPC[:])
	b[offDataLen] = byte(rec.DataLen)
	copy(b[offData:], rec.Data[:])

	return append(dst, b[:]...)
}

// DecodeBatch decodes count records laid out stride bytes apart in payload.
// Bounds are checked up front; a batch that does not fit decodes nothing.
// Malformed records are skipped and reported as *RecordError joined into err,
// the remaining tags keep the reader order.
func DecodeBatch(payload []byte, stride, count int) ([]models.Tag, error) {
	if stride < RecordSize || count < 0 {
		return nil, fmt.Errorf("%w: stride %d, count %d", ErrBatchBounds, stride, count)
	}
	if count > len(payload)/stride {
		return nil, fmt.Errorf("%w: %d records of %d bytes, payload %d",
			ErrBatchBounds, count, stride, len(payload))
	}

	tags := make([]models.Tag, 0, count)
	var errs []error

	for i := 0; i < count; i++ {
		rec, err := UnmarshalRecord(payload[i*stride : i*stride+RecordSize])
		if err != nil {
			errs = append(errs, &RecordError{Index: i, Err: err})
			continue
		}

		tag, err := DecodeRecord(rec)
		if err != nil {
			errs = append(errs, &RecordError{Index: i, Err: err})
			continue
		}

		tags = append(tags, tag)
	}

	return tags, errors.Join(errs...)
}
