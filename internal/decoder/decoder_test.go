package decoder

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bft-labs/satlink/internal/domain"
)

const validTestsatPayload = "a500010ea60f015445535400"

func loadTestDecoder(t *testing.T, name string) *Decoder {
	t.Helper()
	s, err := LoadSchemaFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("LoadSchemaFile(%s): %v", name, err)
	}
	d, err := New(s)
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	return d
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex %q: %v", s, err)
	}
	return b
}

func TestDecoder_Decode(t *testing.T) {
	d := loadTestDecoder(t, "testsat.yaml")

	frame, err := d.Decode(mustHex(t, validTestsatPayload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if frame.Satellite != "testsat" || frame.FrameKind != "beacon" {
		t.Errorf("frame = %s/%s, want testsat/beacon", frame.Satellite, frame.FrameKind)
	}

	got := frame.Map()
	if _, ok := got["sync"]; ok {
		t.Error("ignored field sync should not be emitted")
	}
	if _, ok := got["reserved"]; ok {
		t.Error("ignored field reserved should not be emitted")
	}
	if len(frame.Fields) != 5 {
		t.Fatalf("got %d fields, want 5", len(frame.Fields))
	}

	if v, _ := got["counter"].Float(); v != 1 {
		t.Errorf("counter = %v, want 1", got["counter"].Value)
	}
	if v, _ := got["battery_voltage"].Float(); v < 3.7499 || v > 3.7501 {
		t.Errorf("battery_voltage = %v, want 3.75", v)
	}
	if got["battery_voltage"].Unit != "V" {
		t.Errorf("battery_voltage unit = %q, want V", got["battery_voltage"].Unit)
	}
	if got["temperature"].Status != domain.StatusValid {
		t.Errorf("temperature status = %v, want Valid", got["temperature"].Status)
	}
	if got["mode"].Value != "nominal" {
		t.Errorf("mode = %v, want nominal", got["mode"].Value)
	}
	if got["callsign"].Value != "TEST" {
		t.Errorf("callsign = %v, want TEST", got["callsign"].Value)
	}

	// declared order is preserved
	names := make([]string, len(frame.Fields))
	for i, f := range frame.Fields {
		names[i] = f.Name
	}
	want := []string{"counter", "battery_voltage", "temperature", "mode", "callsign"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("field order = %v, want %v", names, want)
	}
}

func TestDecoder_RangeStatus(t *testing.T) {
	d := loadTestDecoder(t, "testsat.yaml")

	tests := []struct {
		name    string
		payload string
		field   string
		want    domain.FieldStatus
	}{
		{"temperature at exclusive high", "a500010ea614015445535400", "temperature", domain.StatusTooHigh},
		{"temperature at inclusive low", "a500010ea60a015445535400", "temperature", domain.StatusValid},
		{"temperature negative", "a500010ea6f6015445535400", "temperature", domain.StatusTooLow},
		{"battery too high", "a5000110cc0f015445535400", "battery_voltage", domain.StatusTooHigh},
		{"battery too low", "a500010bb70f015445535400", "battery_voltage", domain.StatusTooLow},
		{"battery at inclusive low", "a500010bb80f015445535400", "battery_voltage", domain.StatusValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := d.Decode(mustHex(t, tt.payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			f, ok := frame.Field(tt.field)
			if !ok {
				t.Fatalf("field %s missing", tt.field)
			}
			if f.Status != tt.want {
				t.Errorf("%s status = %v (value %v), want %v", tt.field, f.Status, f.Value, tt.want)
			}
		})
	}
}

func TestDecoder_Deterministic(t *testing.T) {
	d := loadTestDecoder(t, "testsat.yaml")
	payload := mustHex(t, validTestsatPayload)

	first, err := d.Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := d.Decode(payload)
		if err != nil {
			t.Fatalf("Decode() #%d error = %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Decode() #%d = %+v, want %+v", i, again, first)
		}
	}
}

func TestDecoder_StructuralErrors(t *testing.T) {
	d := loadTestDecoder(t, "testsat.yaml")

	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"corrupted leading byte", "ff00010ea60f015445535400", "sync"},
		{"truncated", "a500010ea6", "temperature"},
		{"empty", "", "sync"},
		{"trailing bytes", validTestsatPayload + "ff", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(mustHex(t, tt.payload))
			if !errors.Is(err, domain.ErrDecode) {
				t.Fatalf("Decode() error = %v, want ErrDecode", err)
			}
			var de *domain.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *DecodeError", err)
			}
			if de.Field != tt.field {
				t.Errorf("DecodeError.Field = %q, want %q", de.Field, tt.field)
			}
		})
	}
}

func TestDecoder_LittleEndianPolynomial(t *testing.T) {
	d := loadTestDecoder(t, "othersat.yaml")

	// uptime 0x00000064 LE, rssi 0x0050 LE = 80 -> -120 + 0.5*80 = -80
	frame, err := d.Decode(mustHex(t, "c0de640000005000"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	m := frame.Map()
	if v, _ := m["uptime"].Float(); v != 100 {
		t.Errorf("uptime = %v, want 100", m["uptime"].Value)
	}
	if v, _ := m["rssi"].Float(); v != -80 {
		t.Errorf("rssi = %v, want -80", m["rssi"].Value)
	}
	if frame.FrameKind != "radio" {
		t.Errorf("FrameKind = %q, want stream name radio", frame.FrameKind)
	}
}

func TestDecoder_StringCoercion(t *testing.T) {
	s, err := ParseSchema([]byte(`
satellite: textsat
fields:
  - name: voltage
    type: str
    size: 5
    range: {low: 0, high: 10}
  - name: label
    type: str
    size: 3
`))
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	d, err := New(s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	frame, err := d.Decode([]byte("12.50abc"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	m := frame.Map()
	if v, ok := m["voltage"].Float(); !ok || v != 12.5 {
		t.Errorf("voltage = %#v, want 12.5", m["voltage"].Value)
	}
	if m["voltage"].Status != domain.StatusTooHigh {
		t.Errorf("voltage status = %v, want TooHigh", m["voltage"].Status)
	}
	if m["label"].Value != "abc" {
		t.Errorf("label = %#v, want raw string abc", m["label"].Value)
	}
	if m["label"].Status != domain.StatusValid {
		t.Errorf("label status = %v, want Valid", m["label"].Status)
	}
}

func TestDecoder_NonFiniteFloats(t *testing.T) {
	s, err := ParseSchema([]byte(`
satellite: floatsat
match: "b7"
fields:
  - name: sync
    type: u1
    contents: "b7"
    ignore: true
  - name: temp
    type: f4
    unit: C
    range: {low: -50, high: 50}
`))
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	d, err := New(s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		payload string
		want    any
		status  domain.FieldStatus
	}{
		{"nan", "b7ffffffff", "NaN", domain.StatusValid},
		{"positive infinity", "b77f800000", "+Inf", domain.StatusTooHigh},
		{"negative infinity", "b7ff800000", "-Inf", domain.StatusTooLow},
		{"finite", "b741200000", 10.0, domain.StatusValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := d.Decode(mustHex(t, tt.payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			temp, _ := frame.Field("temp")
			if temp.Value != tt.want || temp.Status != tt.status {
				t.Errorf("temp = %#v/%v, want %#v/%v", temp.Value, temp.Status, tt.want, tt.status)
			}
			if _, err := json.Marshal(temp.Value); err != nil {
				t.Errorf("value %#v is not JSON encodable: %v", temp.Value, err)
			}
		})
	}
}

func TestDecoder_StringInfinityStaysText(t *testing.T) {
	s, err := ParseSchema([]byte(`
satellite: textsat
fields:
  - name: reading
    type: str
    size: 3
    range: {low: 0, high: 10}
`))
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	d, err := New(s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, text := range []string{"inf", "NaN"} {
		frame, err := d.Decode([]byte(text))
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", text, err)
		}
		reading, _ := frame.Field("reading")
		if reading.Value != text || reading.Status != domain.StatusValid {
			t.Errorf("reading = %#v/%v, want raw text %q and Valid", reading.Value, reading.Status, text)
		}
	}
}
