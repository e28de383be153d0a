package statement

import (
	"testing"
	"time"
)

func TestNormalizeDate(t *testing.T) {
	now := time.Date(2025, 6, 16, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name          string
		raw           string
		want          time.Time
		wantDefaulted bool
	}{
		{name: "iso", raw: "2025-06-13", want: time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)},
		{name: "french slash", raw: "13/06/2025", want: time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)},
		{name: "dash", raw: "13-06-2025", want: time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)},
		{name: "slashed iso", raw: "2025/06/13", want: time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)},
		{name: "with whitespace", raw: "  2025-06-13  ", want: time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)},
		{name: "datetime", raw: "2025-06-13 10:30:00", want: time.Date(2025, 6, 13, 10, 30, 0, 0, time.UTC)},
		{name: "garbage falls back to today", raw: "not a date", want: now.Truncate(24 * time.Hour), wantDefaulted: true},
		{name: "empty falls back to today", raw: "", want: now.Truncate(24 * time.Hour), wantDefaulted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, defaulted := NormalizeDate(tt.raw, now)
			if !got.Equal(tt.want) {
				t.Errorf("NormalizeDate(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if defaulted != tt.wantDefaulted {
				t.Errorf("NormalizeDate(%q) defaulted = %v, want %v", tt.raw, defaulted, tt.wantDefaulted)
			}
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "plain", raw: "25.50", want: 25.50},
		{name: "negative", raw: "-25.50", want: -25.50},
		{name: "comma decimal", raw: "25,50", want: 25.50},
		{name: "space thousands", raw: "1 200,00", want: 1200.00},
		{name: "nbsp thousands", raw: "1 200,00", want: 1200.00},
		{name: "integer", raw: "100", want: 100},
		{name: "empty", raw: "", wantErr: true},
		{name: "garbage", raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAmount(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NormalizeAmount(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeAmount(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeAmount(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "trimmed", raw: "  hello  ", want: "hello"},
		{name: "angle brackets stripped", raw: "<script>alert</script>", want: "scriptalert/script"},
		{name: "newlines collapsed", raw: "line1\nline2\tline3", want: "line1 line2 line3"},
		{name: "repeated spaces collapsed", raw: "a   b", want: "a b"},
		{name: "empty", raw: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.raw); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBuildCandidateDropsIncompleteRows(t *testing.T) {
	now := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		row  RawRow
	}{
		{name: "missing date", row: RawRow{"Montant": "10", "Libellé": "X"}},
		{name: "missing amount", row: RawRow{"Date": "2025-06-13", "Libellé": "X"}},
		{name: "missing description", row: RawRow{"Date": "2025-06-13", "Montant": "10"}},
		{name: "unparseable amount", row: RawRow{"Date": "2025-06-13", "Montant": "abc", "Libellé": "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := BuildCandidate(tt.row, 1, now); ok {
				t.Error("BuildCandidate accepted an incomplete row")
			}
		})
	}
}

func TestBuildCandidateDateFallback(t *testing.T) {
	now := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	row := RawRow{"Date": "junk", "Montant": "10", "Libellé": "X"}

	c, ok := BuildCandidate(row, 1, now)
	if !ok {
		t.Fatal("BuildCandidate returned ok=false")
	}
	if !c.DateDefaulted {
		t.Error("DateDefaulted = false for unparseable date")
	}
	if !c.Date.Equal(now.Truncate(24 * time.Hour)) {
		t.Errorf("Date = %v, want import day", c.Date)
	}
}
