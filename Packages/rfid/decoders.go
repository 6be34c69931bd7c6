package rfid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"nurscan/Packages/rfid/models"
)

var ErrMalformedRecord = errors.New("malformed tag record")

// DecodeRecord converts one raw record into a tag. A length field outside its
// buffer capacity is an error, nothing is truncated.
func DecodeRecord(rec models.TagRecord) (models.Tag, error) {
	if rec.EPCLen < 0 || rec.EPCLen > models.MaxEPCLength {
		return models.Tag{}, fmt.Errorf("%w: epc length %d, capacity %d",
			ErrMalformedRecord, rec.EPCLen, models.MaxEPCLength)
	}

	if rec.DataLen < 0 || rec.DataLen > models.MaxDataLength {
		return models.Tag{}, fmt.Errorf("%w: data length %d, capacity %d",
			ErrMalformedRecord, rec.DataLen, models.MaxDataLength)
	}

	tag := models.Tag{
		EPC:        encodeHex(rec.EPC[:rec.EPCLen]),
		RSSI:       rec.RSSI,
		ScaledRSSI: rec.ScaledRSSI,
		AntennaID:  rec.AntennaID,
		Timestamp:  rec.Timestamp,
		Frequency:  rec.Frequency,
		Channel:    rec.Channel,
	}

	if rec.DataLen > 0 {
		tag.TID = encodeHex(rec.Data[:rec.DataLen])
	}

	return tag, nil
}

// encodeHex two digits per byte, no separators, uppercase
func encodeHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
