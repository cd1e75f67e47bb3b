package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
	gotAt, gotID, err := Decode(Encode(at, "abc-123"))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !gotAt.Equal(at) {
		t.Errorf("time = %v, want %v", gotAt, at)
	}
	if gotID != "abc-123" {
		t.Errorf("id = %q, want abc-123", gotID)
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, c := range []string{"!!!", "bm9waXBl", "MjAyNnw="} {
		if _, _, err := Decode(c); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidCursor", c, err)
		}
	}
}

func TestPageLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{10, 10},
		{1000, MaxLimit},
	}
	for _, tt := range tests {
		if got := (Params{Limit: tt.in}).PageLimit(); got != tt.want {
			t.Errorf("PageLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTrim(t *testing.T) {
	type row struct {
		id string
		at time.Time
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{"c", base.Add(3)}, {"b", base.Add(2)}, {"a", base.Add(1)}}
	key := func(r row) (time.Time, string) { return r.at, r.id }

	page, next := Trim(rows, 2, key)
	if len(page) != 2 || next == "" {
		t.Fatalf("expected 2 rows and a cursor, got %d rows, cursor %q", len(page), next)
	}
	_, id, err := Decode(next)
	if err != nil || id != "b" {
		t.Errorf("next cursor points at %q (%v), want b", id, err)
	}

	page, next = Trim(rows, 3, key)
	if len(page) != 3 || next != "" {
		t.Errorf("expected full page without cursor, got %d rows, cursor %q", len(page), next)
	}
}
