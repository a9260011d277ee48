package dateparse

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) // Saturday

func TestParseFixedKeywords(t *testing.T) {
	cases := []struct {
		expr string
		want Range
	}{
		{"today", Range{"2024-06-15", "2024-06-15"}},
		{"yesterday", Range{"2024-06-14", "2024-06-14"}},
		{"tomorrow", Range{"2024-06-16", "2024-06-16"}},
	}
	for _, c := range cases {
		t.Run(c.expr, func(t *testing.T) {
			got, err := Parse(c.expr, fixedNow)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", c.expr, err)
			}
			if got != c.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", c.expr, got, c.want)
			}
		})
	}
}

func TestParsePeriodPhrases(t *testing.T) {
	cases := []struct {
		expr string
		want Range
	}{
		{"this week", Range{"2024-06-10", "2024-06-16"}},
		{"last week", Range{"2024-06-03", "2024-06-09"}},
		{"this month", Range{"2024-06-01", "2024-06-30"}},
		{"last month", Range{"2024-05-01", "2024-05-31"}},
		{"next month", Range{"2024-07-01", "2024-07-31"}},
		{"this quarter", Range{"2024-04-01", "2024-06-30"}},
		{"this year", Range{"2024-01-01", "2024-12-31"}},
		{"last year", Range{"2023-01-01", "2023-12-31"}},
	}
	for _, c := range cases {
		t.Run(c.expr, func(t *testing.T) {
			got, err := Parse(c.expr, fixedNow)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", c.expr, err)
			}
			if got != c.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", c.expr, got, c.want)
			}
		})
	}
}

func TestParseRelativeN(t *testing.T) {
	cases := []struct {
		expr string
		want Range
	}{
		{"last 7 days", Range{"2024-06-09", "2024-06-15"}},
		{"next 3 days", Range{"2024-06-16", "2024-06-18"}},
		{"last 2 weeks", Range{"2024-06-02", "2024-06-15"}},
	}
	for _, c := range cases {
		t.Run(c.expr, func(t *testing.T) {
			got, err := Parse(c.expr, fixedNow)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", c.expr, err)
			}
			if got != c.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", c.expr, got, c.want)
			}
		})
	}
}

func TestParseFromTo(t *testing.T) {
	got, err := Parse("from 7 days ago to now", fixedNow)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Range{Start: "2024-06-08", End: "2024-06-15"}
	if got != want {
		t.Fatalf("Parse() = %+v, want %+v", got, want)
	}
}

func TestParseISODatePassesThroughUnchanged(t *testing.T) {
	got, err := Parse("2024-01-01", fixedNow)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Start != "2024-01-01" || got.End != "2024-01-01" {
		t.Fatalf("Parse() = %+v", got)
	}
}

func TestParseUnparseableInputFails(t *testing.T) {
	if _, err := Parse("whenever is convenient", fixedNow); err == nil {
		t.Fatal("expected an error for an unparseable expression")
	}
}

func TestValidateRejectsEndBeforeStart(t *testing.T) {
	if err := Validate("2024-06-10", "2024-06-01"); err == nil {
		t.Fatal("expected an error when end precedes start")
	}
}

func TestValidateAcceptsWellFormedRange(t *testing.T) {
	if err := Validate("2024-06-01", "2024-06-10"); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
