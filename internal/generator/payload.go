package generator

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"codeberg.org/mutker/vitalsim/internal/scenario"
)

// TimestampFormat is RFC 3339 with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Payload is one vitals sample as delivered to the ingestion endpoint.
type Payload struct {
	PatientID string
	DeviceID  string
	Timestamp time.Time
	Values    Reading
}

func NewPayload(patientID, deviceID string, ts time.Time, reading Reading) *Payload {
	return &Payload{
		PatientID: patientID,
		DeviceID:  deviceID,
		Timestamp: ts.UTC(),
		Values:    reading,
	}
}

// MarshalJSON writes identifiers first, then vitals in a fixed order, each with
// its own precision so that temperature always carries two decimals.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')
	writeField(&buf, "patient_id", p.PatientID)
	buf.WriteByte(',')
	writeField(&buf, "device_id", p.DeviceID)
	buf.WriteByte(',')
	writeField(&buf, "ts", p.Timestamp.UTC().Format(TimestampFormat))

	for _, vital := range scenario.Vitals {
		value, ok := p.Values[vital]
		if !ok {
			continue
		}
		buf.WriteString(`,"`)
		buf.WriteString(string(vital))
		buf.WriteString(`":`)
		buf.WriteString(strconv.FormatFloat(value, 'f', vital.Precision(), 64))
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key, value string) {
	k, _ := json.Marshal(key)
	v, _ := json.Marshal(value)
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
}
