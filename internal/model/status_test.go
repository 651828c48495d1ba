package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusNew},
		{StatusNew, StatusCachePending},
		{StatusNew, StatusInProgress},
		{StatusCachePending, StatusInProgress},
		{StatusInProgress, StatusBlocked},
		{StatusBlocked, StatusInProgress},
		{StatusInProgress, StatusDone},
		{StatusCachePending, StatusDone},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusDone, StatusNew},
		{StatusDone, StatusInProgress},
		{StatusInProgress, StatusNew},
		{StatusBlocked, StatusCachePending},
		{"not_a_state", StatusNew},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransition_BlocksIllegalPathAndStampsTime(t *testing.T) {
	rec := TrackingRecord{ItemID: "vid-1", Status: StatusDone}
	if err := Transition(&rec, StatusInProgress, ""); err == nil {
		t.Fatalf("expected illegal transition error")
	}

	rec = TrackingRecord{ItemID: "vid-2", Status: StatusNew}
	if err := Transition(&rec, StatusBlocked, ReasonNeedsCacheSync); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.BlockReason != ReasonNeedsCacheSync {
		t.Fatalf("expected block reason to be recorded, got %q", rec.BlockReason)
	}
	if rec.LastTransitionAt == "" {
		t.Fatalf("expected transition timestamp to be set")
	}
}

func TestNextPart(t *testing.T) {
	cases := []struct {
		parts []int
		want  int
	}{
		{nil, 1},
		{[]int{1}, 2},
		{[]int{1, 2, 3}, 4},
		{[]int{2, 5}, 6},
	}
	for _, tc := range cases {
		rec := TrackingRecord{PartsUploaded: tc.parts}
		if got := rec.NextPart(); got != tc.want {
			t.Fatalf("NextPart(%v) = %d, want %d", tc.parts, got, tc.want)
		}
	}
}

func TestAddPart_IgnoresDuplicates(t *testing.T) {
	rec := TrackingRecord{}
	if !rec.AddPart(1, "ref-1") {
		t.Fatalf("expected first add to succeed")
	}
	if rec.AddPart(1, "ref-dup") {
		t.Fatalf("expected duplicate add to be ignored")
	}
	if len(rec.PartsUploaded) != 1 || len(rec.PublishedRefs) != 1 {
		t.Fatalf("duplicate add mutated record: parts=%v refs=%v", rec.PartsUploaded, rec.PublishedRefs)
	}

	rec.AddPart(3, "ref-3")
	rec.AddPart(2, "ref-2")
	want := []int{1, 2, 3}
	for i, p := range want {
		if rec.PartsUploaded[i] != p {
			t.Fatalf("expected sorted parts %v, got %v", want, rec.PartsUploaded)
		}
	}
	wantRefs := []string{"ref-1", "ref-2", "ref-3"}
	for i, ref := range wantRefs {
		if rec.PublishedRefs[i] != ref {
			t.Fatalf("refs out of alignment with parts: %v vs %v", rec.PublishedRefs, rec.PartsUploaded)
		}
	}
}

func TestAddPart_SkippedSegmentKeepsRefsAligned(t *testing.T) {
	rec := TrackingRecord{}
	rec.AddPart(1, "ref-1")
	rec.AddPart(2, "") // segment skipped, never published
	rec.AddPart(3, "ref-3")

	if len(rec.PublishedRefs) != len(rec.PartsUploaded) {
		t.Fatalf("refs and parts differ in length: %v vs %v", rec.PublishedRefs, rec.PartsUploaded)
	}
	wantRefs := []string{"ref-1", "", "ref-3"}
	for i, ref := range wantRefs {
		if rec.PublishedRefs[i] != ref {
			t.Fatalf("expected refs %v, got %v", wantRefs, rec.PublishedRefs)
		}
	}
}

func TestHasOutstanding(t *testing.T) {
	rec := TrackingRecord{Status: StatusInProgress, TotalParts: 3, PartsUploaded: []int{1, 2}}
	if !rec.HasOutstanding() {
		t.Fatalf("expected outstanding work at 2/3 parts")
	}
	rec.AddPart(3, "r")
	if rec.HasOutstanding() {
		t.Fatalf("expected no outstanding segments once all parts are recorded")
	}
	rec.Status = StatusDone
	if rec.HasOutstanding() {
		t.Fatalf("done record must not be outstanding")
	}

	unplanned := TrackingRecord{Status: StatusNew}
	if !unplanned.HasOutstanding() {
		t.Fatalf("record without a computed part count must be outstanding")
	}
}
