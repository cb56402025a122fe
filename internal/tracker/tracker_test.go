package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/discord"
	"github.com/spslater/voicetally/internal/ledger"
	"github.com/spslater/voicetally/internal/presence"
)

type segmentKey struct {
	userID    string
	channelID string
	dimension presence.Dimension
	startedAt int64
}

type storedSegment struct {
	guildID    string
	duration   int64
	historical bool
}

// mockLedger applies the Record contract to an in-memory table so tests can
// assert final ledger content the way a report query would see it.
type mockLedger struct {
	mu        sync.Mutex
	segments  map[segmentKey]storedSegment
	lastRuns  map[string]time.Time
	recordErr error
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		segments: make(map[segmentKey]storedSegment),
		lastRuns: make(map[string]time.Time),
	}
}

func (m *mockLedger) Record(_ context.Context, drafts []presence.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	for _, d := range drafts {
		key := segmentKey{
			userID:    d.Key.UserID,
			channelID: d.Key.ChannelID,
			dimension: d.Dimension,
			startedAt: d.StartedAt.Unix(),
		}
		existing, ok := m.segments[key]
		switch {
		case !ok:
			m.segments[key] = storedSegment{guildID: d.Key.GuildID, duration: d.DurationSeconds, historical: d.Historical}
		case d.Extend:
			existing.duration = d.DurationSeconds
			m.segments[key] = existing
		case d.DurationSeconds > existing.duration:
			existing.duration = d.DurationSeconds
			m.segments[key] = existing
		}
	}
	return nil
}

func (m *mockLedger) Compact(_ context.Context) (int64, error) { return 0, nil }

func (m *mockLedger) Aggregate(_ context.Context, userID, guildID string, dim presence.Dimension, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for key, seg := range m.segments {
		if key.userID == userID && seg.guildID == guildID && key.dimension == dim && key.startedAt >= since.Unix() {
			total += seg.duration
		}
	}
	return total, nil
}

func (m *mockLedger) Top(_ context.Context, _ string, _ presence.Dimension, _ time.Time, _ int) ([]ledger.RankedDuration, error) {
	return nil, nil
}

func (m *mockLedger) JobLastRun(_ context.Context, name string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRuns[name], nil
}

func (m *mockLedger) SetJobLastRun(_ context.Context, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRuns[name] = at
	return nil
}

func (m *mockLedger) contentSnapshot() map[segmentKey]storedSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[segmentKey]storedSegment, len(m.segments))
	for k, v := range m.segments {
		out[k] = v
	}
	return out
}

func (m *mockLedger) segment(t *testing.T, userID, channelID string, dim presence.Dimension, startedAt time.Time) storedSegment {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	seg, ok := m.segments[segmentKey{userID: userID, channelID: channelID, dimension: dim, startedAt: startedAt.Unix()}]
	if !ok {
		t.Fatalf("no segment for %s/%s/%s@%v; have %+v", userID, channelID, dim, startedAt, m.segments)
	}
	return seg
}

func newTestConfig() *config.Config {
	return &config.Config{
		Env:                    "test",
		DatabaseURL:            "postgres://localhost/test",
		DiscordToken:           "token",
		DiscordGuildID:         "guild-1",
		ReconcileIntervalSec:   60,
		CompactionIntervalDays: 12,
		MaxSegmentHours:        10,
		ReportWindowDays:       30,
		ReportTopLimit:         10,
		ImportTimezone:         "UTC",
	}
}

var trackerT0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func discordEvent(guildID, userID string, isBot bool, before, after string) discord.VoiceStateEvent {
	return discord.VoiceStateEvent{
		GuildID:         guildID,
		UserID:          userID,
		UserIsBot:       isBot,
		BeforeChannelID: before,
		AfterChannelID:  after,
	}
}

func TestApply_JoinWritesNothingButTracks(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)

	err := tr.Apply(context.Background(), Transition{
		UserID: "user-1", GuildID: "guild-1",
		AfterChannel: "vc-1", Now: trackerT0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(led.contentSnapshot()) != 0 {
		t.Fatalf("expected no ledger rows after join, got %+v", led.contentSnapshot())
	}
	sessions := tr.Snapshot()
	if len(sessions) != 1 || sessions[0].ChannelID != "vc-1" {
		t.Fatalf("unexpected tracked sessions: %+v", sessions)
	}
}

func TestApply_JoinMuteToggleLeaveDurationsAddUp(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)
	ctx := context.Background()

	t1 := trackerT0.Add(5 * time.Minute)
	t2 := trackerT0.Add(15 * time.Minute)
	t3 := trackerT0.Add(30 * time.Minute)

	steps := []Transition{
		{UserID: "user-1", GuildID: "guild-1", AfterChannel: "vc-1", Now: trackerT0},
		{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", AfterChannel: "vc-1", AfterFlags: presence.Flags{Muted: true}, Now: t1},
		{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", AfterChannel: "vc-1", Now: t2},
		{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", Now: t3},
	}
	for _, step := range steps {
		if err := tr.Apply(ctx, step); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	conn := led.segment(t, "user-1", "vc-1", presence.DimensionConnected, trackerT0)
	if conn.duration != 1800 {
		t.Fatalf("expected connected duration 1800, got %d", conn.duration)
	}
	mute := led.segment(t, "user-1", "vc-1", presence.DimensionMuted, t1)
	if mute.duration != 600 {
		t.Fatalf("expected muted duration 600, got %d", mute.duration)
	}
	if len(led.contentSnapshot()) != 2 {
		t.Fatalf("expected exactly 2 segments, got %+v", led.contentSnapshot())
	}
	if len(tr.Snapshot()) != 0 {
		t.Fatal("expected no tracked session after leave")
	}
}

func TestApply_DuplicateEventIsIdempotent(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)
	ctx := context.Background()

	t1 := trackerT0.Add(5 * time.Minute)
	t2 := trackerT0.Add(10 * time.Minute)
	mustApply := func(tr2 Transition) {
		t.Helper()
		if err := tr.Apply(ctx, tr2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	mustApply(Transition{UserID: "user-1", GuildID: "guild-1", AfterChannel: "vc-1", AfterFlags: presence.Flags{Muted: true}, Now: trackerT0})
	muteOff := Transition{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", AfterChannel: "vc-1", Now: t1}
	mustApply(muteOff)
	once := led.contentSnapshot()

	// The gateway occasionally redelivers an event verbatim.
	mustApply(muteOff)
	twice := led.contentSnapshot()

	if len(once) != len(twice) {
		t.Fatalf("duplicate delivery changed row count: %d vs %d", len(once), len(twice))
	}
	for k, v := range once {
		if twice[k] != v {
			t.Fatalf("duplicate delivery changed row %+v: %+v vs %+v", k, v, twice[k])
		}
	}

	leave := Transition{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", Now: t2}
	mustApply(leave)
	mustApply(leave)
	if got := led.segment(t, "user-1", "vc-1", presence.DimensionConnected, trackerT0).duration; got != 600 {
		t.Fatalf("expected connected duration 600 after duplicate leave, got %d", got)
	}
}

func TestApply_MoveSplitsSegmentsAcrossChannels(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)
	ctx := context.Background()

	t1 := trackerT0.Add(2 * time.Minute)
	t2 := trackerT0.Add(10 * time.Minute)
	t3 := trackerT0.Add(25 * time.Minute)

	steps := []Transition{
		{UserID: "user-1", GuildID: "guild-1", AfterChannel: "vc-a", Now: trackerT0},
		{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-a", AfterChannel: "vc-a", AfterFlags: presence.Flags{Video: true}, Now: t1},
		{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-a", AfterChannel: "vc-b", AfterFlags: presence.Flags{Video: true}, Now: t2},
		{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-b", Now: t3},
	}
	for _, step := range steps {
		if err := tr.Apply(ctx, step); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	connA := led.segment(t, "user-1", "vc-a", presence.DimensionConnected, trackerT0)
	connB := led.segment(t, "user-1", "vc-b", presence.DimensionConnected, t2)
	if connA.duration+connB.duration != 1500 {
		t.Fatalf("expected connected durations to sum to 1500, got %d + %d", connA.duration, connB.duration)
	}
	videoA := led.segment(t, "user-1", "vc-a", presence.DimensionVideo, t1)
	if videoA.duration != 480 {
		t.Fatalf("expected video on vc-a to end at the move, got %d", videoA.duration)
	}
	videoB := led.segment(t, "user-1", "vc-b", presence.DimensionVideo, t2)
	if videoB.duration != 900 {
		t.Fatalf("expected video on vc-b to start at the move, got %d", videoB.duration)
	}
}

func TestApply_LeaveWithoutSessionIsNoop(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)

	err := tr.Apply(context.Background(), Transition{
		UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", Now: trackerT0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(led.contentSnapshot()) != 0 {
		t.Fatalf("expected no ledger rows, got %+v", led.contentSnapshot())
	}
}

func TestApply_StaleBeforeChannelTrustsTrackedSession(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)
	ctx := context.Background()

	if err := tr.Apply(ctx, Transition{UserID: "user-1", GuildID: "guild-1", AfterChannel: "vc-1", Now: trackerT0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Event claims the user was in vc-2; memory knows better.
	if err := tr.Apply(ctx, Transition{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-2", Now: trackerT0.Add(time.Minute)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := led.segment(t, "user-1", "vc-1", presence.DimensionConnected, trackerT0).duration; got != 60 {
		t.Fatalf("expected close against tracked channel, got duration %d", got)
	}
}

func TestApply_RecordFailureKeepsSessionForRetry(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)
	ctx := context.Background()

	if err := tr.Apply(ctx, Transition{UserID: "user-1", GuildID: "guild-1", AfterChannel: "vc-1", Now: trackerT0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	led.recordErr = errors.New("storage down")

	err := tr.Apply(ctx, Transition{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", Now: trackerT0.Add(time.Minute)})
	if err == nil {
		t.Fatal("expected error when ledger write fails")
	}
	if len(tr.Snapshot()) != 1 {
		t.Fatal("expected session kept for retry after failed write")
	}

	led.recordErr = nil
	if err := tr.Apply(ctx, Transition{UserID: "user-1", GuildID: "guild-1", BeforeChannel: "vc-1", Now: trackerT0.Add(2 * time.Minute)}); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if got := led.segment(t, "user-1", "vc-1", presence.DimensionConnected, trackerT0).duration; got != 120 {
		t.Fatalf("expected retried close duration 120, got %d", got)
	}
}

func TestHandleVoiceStateUpdate_FiltersGuildAndBots(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)

	tr.HandleVoiceStateUpdate(discordEvent("guild-2", "user-1", false, "", "vc-1"))
	tr.HandleVoiceStateUpdate(discordEvent("guild-1", "bot-1", true, "", "vc-1"))

	if len(tr.Snapshot()) != 0 {
		t.Fatalf("expected no tracked sessions, got %+v", tr.Snapshot())
	}

	tr.cfg.TrackOtherBots = true
	tr.HandleVoiceStateUpdate(discordEvent("guild-1", "bot-1", true, "", "vc-1"))
	if len(tr.Snapshot()) != 1 {
		t.Fatal("expected bot session tracked when TRACK_OTHER_BOTS is enabled")
	}
}

func TestFlushAll_ClosesEveryOpenSession(t *testing.T) {
	led := newMockLedger()
	tr := New(newTestConfig(), led)
	ctx := context.Background()

	for _, user := range []string{"user-1", "user-2"} {
		if err := tr.Apply(ctx, Transition{UserID: user, GuildID: "guild-1", AfterChannel: "vc-1", Now: trackerT0}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	flushed := tr.FlushAll(ctx, trackerT0.Add(10*time.Minute))
	if flushed != 2 {
		t.Fatalf("expected 2 flushed sessions, got %d", flushed)
	}
	if len(tr.Snapshot()) != 0 {
		t.Fatal("expected empty table after flush")
	}
	for _, user := range []string{"user-1", "user-2"} {
		if got := led.segment(t, user, "vc-1", presence.DimensionConnected, trackerT0).duration; got != 600 {
			t.Fatalf("expected flushed duration 600 for %s, got %d", user, got)
		}
	}
}
