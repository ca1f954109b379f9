package activity

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampDecodesWireVariants(t *testing.T) {
	rfc := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC).UnixMilli()
	cases := []struct {
		name string
		raw  string
		want Timestamp
	}{
		{"number", `1718445600000`, 1718445600000},
		{"numeric string", `"1718445600000"`, 1718445600000},
		{"rfc3339", `"2024-06-10T08:00:00Z"`, Timestamp(rfc)},
		{"null", `null`, 0},
		{"garbage", `"yesterday"`, 0},
	}
	for _, tc := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tc.raw), &ts); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if ts != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, ts)
		}
	}
}

func TestTimestampMarshalsAsNumber(t *testing.T) {
	raw, err := json.Marshal(Timestamp(1718445600000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "1718445600000" {
		t.Fatalf("expected plain number, got %s", raw)
	}
}

func TestSessionDecodesStringCreatedAt(t *testing.T) {
	// Older clients send created_at as an RFC3339 string; the payload must
	// still decode as a whole.
	payload := `{"session_id":"s1","sport":"course","created_at":"2024-06-10T08:00:00Z"}`
	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID != "s1" {
		t.Fatalf("unexpected session %+v", sess)
	}
	want := Timestamp(time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC).UnixMilli())
	if sess.CreatedAt != want {
		t.Fatalf("expected %d, got %d", want, sess.CreatedAt)
	}
}
