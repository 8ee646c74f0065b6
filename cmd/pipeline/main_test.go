package main

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name          string
		date          string
		start, end    string
		wantExecution time.Time
		wantStart     string
		wantEnd       string
		wantErr       bool
	}{
		{name: "defaults"},
		{name: "execution date", date: "2025-07-31", wantExecution: time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)},
		{name: "single day window", start: "2025-07-30", wantStart: "2025-07-30", wantEnd: "2025-07-30"},
		{name: "multi day window", start: "2025-07-28", end: "2025-07-30", wantStart: "2025-07-28", wantEnd: "2025-07-30"},
		{name: "end without start", end: "2025-07-30", wantErr: true},
		{name: "bad date", date: "31/07/2025", wantErr: true},
		{name: "end before start", start: "2025-07-30", end: "2025-07-28", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildRequest(tt.date, tt.start, tt.end, "synthetic", true)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildRequest failed: %v", err)
			}
			if req.Source != "synthetic" || !req.DryRun {
				t.Errorf("flags not carried: %+v", req)
			}
			if !req.ExecutionDate.Equal(tt.wantExecution) {
				t.Errorf("execution date = %v, want %v", req.ExecutionDate, tt.wantExecution)
			}
			if tt.wantStart == "" {
				if req.Window != nil {
					t.Errorf("window = %+v, want nil", req.Window)
				}
				return
			}
			if req.Window == nil {
				t.Fatal("window is nil")
			}
			if req.Window.Start != mustDate(t, tt.wantStart) || req.Window.End != mustDate(t, tt.wantEnd) {
				t.Errorf("window = %+v", req.Window)
			}
		})
	}
}

func mustDate(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
