package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/ledger"
	"github.com/spslater/voicetally/internal/presence"
)

// Action is the normalized vocabulary of historical log events. Mute is
// absent: the source logger bot never recorded it.
type Action string

const (
	ActionJoin      Action = "join"
	ActionLeft      Action = "left"
	ActionMove      Action = "move"
	ActionDeafOn    Action = "deaf_on"
	ActionDeafOff   Action = "deaf_off"
	ActionVideoOn   Action = "video_on"
	ActionVideoOff  Action = "video_off"
	ActionStreamOn  Action = "stream_on"
	ActionStreamOff Action = "stream_off"
)

// Event is one parsed log line. Channel carries the join/left target by name;
// FromChannel/ToChannel carry a move. Channel identity is resolved against the
// guild at replay time, not parse time.
type Event struct {
	UserID      string
	Timestamp   time.Time
	Action      Action
	Channel     string
	FromChannel string
	ToChannel   string
}

// LogParser turns one free-text log line into an Event. The second return is
// false when the line matches no recognized pattern. Keeping the format
// behind this interface isolates the core from the third-party bot phrasing.
type LogParser interface {
	Parse(line string) (Event, bool)
}

// ChannelResolver maps a channel name to its id within a guild. Satisfied by
// the discord client.
type ChannelResolver interface {
	ResolveChannelIDByName(guildID, name string) (string, error)
}

// Summary reports what one replay run did.
type Summary struct {
	RunID            string
	GuildID          string
	Lines            int
	Parsed           int
	Malformed        int
	DiscardedOrphans int
	LookupFailures   int
	SegmentsWritten  int
	CappedSegments   int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Replayer rebuilds duration segments from historical free-text logs by
// feeding parsed events through the same state and diff semantics as the live
// tracker. Every duration is capped so a join with no matching left cannot
// produce an unbounded segment, and every written draft is marked historical.
type Replayer struct {
	cfg      *config.Config
	ledger   ledger.Ledger
	parser   LogParser
	resolver ChannelResolver

	channelIDs map[string]string
	cursors    map[string]*cursor
}

type cursor struct {
	channelID string
	state     presence.State
	lastSeen  time.Time
}

func New(cfg *config.Config, led ledger.Ledger, parser LogParser, resolver ChannelResolver) *Replayer {
	return &Replayer{
		cfg:      cfg,
		ledger:   led,
		parser:   parser,
		resolver: resolver,
	}
}

// Replay parses every line from r and replays the recognized events in
// timestamp order. Malformed lines are counted and skipped, never fatal; only
// ledger and input I/O errors abort the run.
func (rp *Replayer) Replay(ctx context.Context, guildID string, r io.Reader) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		GuildID:   guildID,
		StartedAt: time.Now(),
	}
	rp.channelIDs = make(map[string]string)
	rp.cursors = make(map[string]*cursor)
	slog.Info("historical replay started", "run_id", summary.RunID, "guild_id", guildID)

	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		summary.Lines++
		ev, ok := rp.parser.Parse(line)
		if !ok {
			summary.Malformed++
			slog.Debug("skipping unrecognized log line", "run_id", summary.RunID, "line", line)
			continue
		}
		summary.Parsed++
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("read log input: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	for _, ev := range events {
		if err := rp.applyEvent(ctx, guildID, ev, summary); err != nil {
			return summary, err
		}
	}
	if err := rp.closeRemaining(ctx, guildID, summary); err != nil {
		return summary, err
	}

	summary.FinishedAt = time.Now()
	slog.Info("historical replay finished",
		"run_id", summary.RunID,
		"lines", summary.Lines,
		"parsed", summary.Parsed,
		"malformed", summary.Malformed,
		"discarded_orphans", summary.DiscardedOrphans,
		"lookup_failures", summary.LookupFailures,
		"segments_written", summary.SegmentsWritten,
		"capped_segments", summary.CappedSegments)
	return summary, nil
}

func (rp *Replayer) applyEvent(ctx context.Context, guildID string, ev Event, summary *Summary) error {
	switch ev.Action {
	case ActionJoin:
		return rp.openSession(ctx, guildID, ev.UserID, ev.Channel, ev.Timestamp, summary)
	case ActionLeft:
		return rp.closeSession(ctx, guildID, ev.UserID, ev.Timestamp, summary)
	case ActionMove:
		return rp.openSession(ctx, guildID, ev.UserID, ev.ToChannel, ev.Timestamp, summary)
	default:
		return rp.applyToggle(ctx, guildID, ev, summary)
	}
}

// openSession starts a session on the named channel, first closing any prior
// open session (a join while one is open means the matching left was never
// logged, which the source format is known to do).
func (rp *Replayer) openSession(ctx context.Context, guildID, userID, channelName string, at time.Time, summary *Summary) error {
	channelID, ok := rp.resolveChannel(guildID, channelName, summary)
	if !ok {
		return nil
	}
	cur := rp.cursors[userID]
	if cur != nil && cur.channelID == channelID {
		cur.lastSeen = at
		return nil
	}

	carried := presence.Flags{}
	if cur != nil {
		carried = cur.state.ActiveFlags()
		if err := rp.closeSession(ctx, guildID, userID, at, summary); err != nil {
			return err
		}
	}
	key := presence.Key{UserID: userID, GuildID: guildID, ChannelID: channelID}
	_, retained := presence.Diff(key, nil, &carried, at)
	rp.cursors[userID] = &cursor{channelID: channelID, state: *retained, lastSeen: at}
	return nil
}

func (rp *Replayer) closeSession(ctx context.Context, guildID, userID string, at time.Time, summary *Summary) error {
	cur := rp.cursors[userID]
	if cur == nil {
		summary.DiscardedOrphans++
		return nil
	}
	key := presence.Key{UserID: userID, GuildID: guildID, ChannelID: cur.channelID}
	drafts, _ := presence.Diff(key, &cur.state, nil, at)
	delete(rp.cursors, userID)
	return rp.record(ctx, drafts, summary)
}

func (rp *Replayer) applyToggle(ctx context.Context, guildID string, ev Event, summary *Summary) error {
	cur := rp.cursors[ev.UserID]
	if cur == nil {
		// No channel context to attach the toggle to.
		summary.DiscardedOrphans++
		return nil
	}
	flags := cur.state.ActiveFlags()
	switch ev.Action {
	case ActionDeafOn:
		flags.Deafened = true
	case ActionDeafOff:
		flags.Deafened = false
	case ActionVideoOn:
		flags.Video = true
	case ActionVideoOff:
		flags.Video = false
	case ActionStreamOn:
		flags.Streaming = true
	case ActionStreamOff:
		flags.Streaming = false
	default:
		summary.Malformed++
		return nil
	}

	key := presence.Key{UserID: ev.UserID, GuildID: guildID, ChannelID: cur.channelID}
	drafts, retained := presence.Diff(key, &cur.state, &flags, ev.Timestamp)
	cur.state = *retained
	cur.lastSeen = ev.Timestamp
	return rp.record(ctx, drafts, summary)
}

// closeRemaining terminates sessions the log never closed, ending them at the
// user's last observed event. The duration cap bounds whatever is left.
func (rp *Replayer) closeRemaining(ctx context.Context, guildID string, summary *Summary) error {
	users := make([]string, 0, len(rp.cursors))
	for userID := range rp.cursors {
		users = append(users, userID)
	}
	sort.Strings(users)
	for _, userID := range users {
		cur := rp.cursors[userID]
		end := cur.lastSeen.Add(time.Duration(rp.cfg.MaxSegmentSeconds()) * time.Second)
		if err := rp.closeSession(ctx, guildID, userID, end, summary); err != nil {
			return err
		}
	}
	return nil
}

func (rp *Replayer) resolveChannel(guildID, name string, summary *Summary) (string, bool) {
	if name == "" {
		summary.LookupFailures++
		return "", false
	}
	if id, ok := rp.channelIDs[name]; ok {
		return id, id != ""
	}
	id, err := rp.resolver.ResolveChannelIDByName(guildID, name)
	if err != nil || id == "" {
		slog.Warn("channel name could not be resolved; skipping event", "guild_id", guildID, "channel_name", name, "error", err)
		rp.channelIDs[name] = ""
		summary.LookupFailures++
		return "", false
	}
	rp.channelIDs[name] = id
	return id, true
}

// record caps every draft duration and marks it historical before writing the
// batch through the shared ledger contract.
func (rp *Replayer) record(ctx context.Context, drafts []presence.Draft, summary *Summary) error {
	if len(drafts) == 0 {
		return nil
	}
	maxSeconds := rp.cfg.MaxSegmentSeconds()
	for i := range drafts {
		if drafts[i].DurationSeconds > maxSeconds {
			drafts[i].DurationSeconds = maxSeconds
			summary.CappedSegments++
		}
		drafts[i].Historical = true
	}
	if err := rp.ledger.Record(ctx, drafts); err != nil {
		return fmt.Errorf("record historical segments: %w", err)
	}
	summary.SegmentsWritten += len(drafts)
	return nil
}
