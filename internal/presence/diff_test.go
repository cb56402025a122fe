package presence

import (
	"testing"
	"time"
)

var testKey = Key{UserID: "user-1", GuildID: "guild-1", ChannelID: "vc-1"}

func draftFor(t *testing.T, drafts []Draft, d Dimension) Draft {
	t.Helper()
	for _, draft := range drafts {
		if draft.Dimension == d {
			return draft
		}
	}
	t.Fatalf("no draft for dimension %s in %+v", d, drafts)
	return Draft{}
}

func hasDraft(drafts []Draft, d Dimension) bool {
	for _, draft := range drafts {
		if draft.Dimension == d {
			return true
		}
	}
	return false
}

func TestDiff_OpenSessionProducesNoDrafts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	drafts, retained := Diff(testKey, nil, &Flags{Deafened: true}, now)

	if len(drafts) != 0 {
		t.Fatalf("expected no drafts on open, got %d", len(drafts))
	}
	if retained == nil {
		t.Fatal("expected retained state on open")
	}
	if !retained.Connected.Equal(now) {
		t.Fatalf("expected connected at %v, got %v", now, retained.Connected)
	}
	if retained.Deafened == nil || !retained.Deafened.Equal(now) {
		t.Fatalf("expected deafened at %v, got %v", now, retained.Deafened)
	}
	if retained.Muted != nil || retained.Streaming != nil || retained.Video != nil {
		t.Fatalf("expected inactive dimensions to stay nil: %+v", retained)
	}
}

func TestDiff_CloseEmitsEveryActiveDimension(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute)
	now := t0.Add(20 * time.Minute)
	muted := t1
	old := &State{Connected: t0, Muted: &muted}

	drafts, retained := Diff(testKey, old, nil, now)

	if retained != nil {
		t.Fatalf("expected nil retained state on close, got %+v", retained)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	conn := draftFor(t, drafts, DimensionConnected)
	if conn.Extend {
		t.Fatal("close draft must not be marked extend")
	}
	if !conn.StartedAt.Equal(t0) || conn.DurationSeconds != 1200 {
		t.Fatalf("unexpected connected draft: %+v", conn)
	}
	mute := draftFor(t, drafts, DimensionMuted)
	if !mute.StartedAt.Equal(t1) || mute.DurationSeconds != 900 {
		t.Fatalf("unexpected muted draft: %+v", mute)
	}
}

func TestDiff_ToggleOnOpensWithoutDraft(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(3 * time.Minute)
	old := &State{Connected: t0}

	drafts, retained := Diff(testKey, old, &Flags{Video: true}, now)

	if hasDraft(drafts, DimensionVideo) {
		t.Fatal("expected no draft when a dimension turns on")
	}
	if retained.Video == nil || !retained.Video.Equal(now) {
		t.Fatalf("expected video start at %v, got %v", now, retained.Video)
	}
	// The open connected segment keeps growing on every observation.
	conn := draftFor(t, drafts, DimensionConnected)
	if !conn.Extend || conn.DurationSeconds != 180 {
		t.Fatalf("unexpected connected extend draft: %+v", conn)
	}
}

func TestDiff_ToggleOffClosesSegment(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	now := t0.Add(10 * time.Minute)
	streaming := t1
	old := &State{Connected: t0, Streaming: &streaming}

	drafts, retained := Diff(testKey, old, &Flags{}, now)

	stream := draftFor(t, drafts, DimensionStreaming)
	if stream.Extend {
		t.Fatal("toggle-off draft must not be marked extend")
	}
	if !stream.StartedAt.Equal(t1) || stream.DurationSeconds != 540 {
		t.Fatalf("unexpected streaming draft: %+v", stream)
	}
	if retained.Streaming != nil {
		t.Fatal("expected streaming cleared in retained state")
	}
}

func TestDiff_StillActivePreservesStartAndExtends(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Minute)
	now := t0.Add(15 * time.Minute)
	deafened := t1
	old := &State{Connected: t0, Deafened: &deafened}

	drafts, retained := Diff(testKey, old, &Flags{Deafened: true}, now)

	deaf := draftFor(t, drafts, DimensionDeafened)
	if !deaf.Extend {
		t.Fatal("still-active draft must be marked extend")
	}
	if !deaf.StartedAt.Equal(t1) || deaf.DurationSeconds != 780 {
		t.Fatalf("unexpected deafened extend draft: %+v", deaf)
	}
	if retained.Deafened == nil || !retained.Deafened.Equal(t1) {
		t.Fatalf("expected deafened start preserved at %v, got %v", t1, retained.Deafened)
	}
}

func TestDiff_InactiveDimensionStaysSilent(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := &State{Connected: t0}

	drafts, _ := Diff(testKey, old, &Flags{}, t0.Add(time.Minute))

	for _, d := range ToggleableDimensions() {
		if hasDraft(drafts, d) {
			t.Fatalf("expected no draft for inactive dimension %s", d)
		}
	}
}

func TestDiff_NegativeDurationClampsToZero(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := &State{Connected: t0}

	drafts, _ := Diff(testKey, old, nil, t0.Add(-time.Minute))

	conn := draftFor(t, drafts, DimensionConnected)
	if conn.DurationSeconds != 0 {
		t.Fatalf("expected clamped duration 0, got %d", conn.DurationSeconds)
	}
}

func TestNewState_StampsActiveDimensions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewState(Flags{Muted: true, Streaming: true}, now)

	if !s.Connected.Equal(now) {
		t.Fatalf("unexpected connected: %v", s.Connected)
	}
	if s.Muted == nil || s.Streaming == nil {
		t.Fatalf("expected active dimensions stamped: %+v", s)
	}
	if s.Deafened != nil || s.Video != nil {
		t.Fatalf("expected inactive dimensions nil: %+v", s)
	}
	flags := s.ActiveFlags()
	if !flags.Muted || !flags.Streaming || flags.Deafened || flags.Video {
		t.Fatalf("unexpected active flags: %+v", flags)
	}
}
