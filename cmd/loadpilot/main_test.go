package main

import (
	"testing"
	"time"

	"github.com/loadpilot/loadpilot/internal/history"
)

func TestMaskIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"a", "*"},
		{"ab", "**"},
		{"abc", "a*c"},
		{"jenkins@example.com", "j*****************m"},
		{"ünïcode", "ü*****e"},
	}

	for _, tt := range tests {
		got := maskIdentifier(tt.input)
		if got != tt.want {
			t.Errorf("maskIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatHistoryEntry(t *testing.T) {
	ended := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

	tests := []struct {
		name  string
		entry history.Entry
		want  string
	}{
		{
			name: "passed with report",
			entry: history.Entry{
				RunID:     9001,
				TestID:    42,
				TestName:  "checkout flow",
				Status:    "passed",
				HasReport: true,
				EndedAt:   ended,
			},
			want: "2025-03-14T15:09:26Z  run 9001 (checkout flow) passed [report]",
		},
		{
			name: "failed with reason, no name",
			entry: history.Entry{
				RunID:   9002,
				TestID:  42,
				Status:  "failed",
				Reason:  "canceled",
				EndedAt: ended,
			},
			want: "2025-03-14T15:09:26Z  run 9002 (test 42) failed: canceled",
		},
		{
			name: "never finished",
			entry: history.Entry{
				RunID:  9003,
				TestID: 42,
				Status: "failed",
			},
			want: "unknown time  run 9003 (test 42) failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatHistoryEntry(tt.entry)
			if got != tt.want {
				t.Errorf("formatHistoryEntry() = %q, want %q", got, tt.want)
			}
		})
	}
}
