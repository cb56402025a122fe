package presence

import "time"

// Dimension is one of the five tracked activity flags. Every dimension is an
// independent boolean axis; a segment is recorded per dimension, not per event.
type Dimension string

const (
	DimensionConnected Dimension = "connected"
	DimensionMuted     Dimension = "muted"
	DimensionDeafened  Dimension = "deafened"
	DimensionStreaming Dimension = "streaming"
	DimensionVideo     Dimension = "video"
)

// ToggleableDimensions are the dimensions that can flip while a session stays
// open. Connected is excluded: it opens with the session and closes with it.
func ToggleableDimensions() []Dimension {
	return []Dimension{DimensionMuted, DimensionDeafened, DimensionStreaming, DimensionVideo}
}

func AllDimensions() []Dimension {
	return []Dimension{DimensionConnected, DimensionMuted, DimensionDeafened, DimensionStreaming, DimensionVideo}
}

// Key identifies one open voice session: a user connected to one channel in
// one guild. A user has at most one open Key at a time; moving channels closes
// one key and opens another.
type Key struct {
	UserID    string
	GuildID   string
	ChannelID string
}

// Flags is the observed on/off snapshot of the four toggleable dimensions.
type Flags struct {
	Muted     bool
	Deafened  bool
	Streaming bool
	Video     bool
}

func (f Flags) Active(d Dimension) bool {
	switch d {
	case DimensionMuted:
		return f.Muted
	case DimensionDeafened:
		return f.Deafened
	case DimensionStreaming:
		return f.Streaming
	case DimensionVideo:
		return f.Video
	default:
		return false
	}
}

// State is the retained picture of one open session. Connected is always set
// while the session exists. The toggleable dimensions hold the instant they
// last flipped inactive→active, or nil while inactive; the timestamp survives
// repeated "still active" observations and only resets on an off/on cycle or a
// channel move.
type State struct {
	Connected time.Time
	Muted     *time.Time
	Deafened  *time.Time
	Streaming *time.Time
	Video     *time.Time
}

// NewState opens a session observed at now: connected starts at now and every
// active toggleable dimension starts a fresh interval at now.
func NewState(flags Flags, now time.Time) State {
	s := State{Connected: now}
	for _, d := range ToggleableDimensions() {
		if flags.Active(d) {
			s.setStart(d, now)
		}
	}
	return s
}

// Start returns the open-interval start for a dimension, and whether the
// dimension is currently active.
func (s State) Start(d Dimension) (time.Time, bool) {
	switch d {
	case DimensionConnected:
		return s.Connected, !s.Connected.IsZero()
	case DimensionMuted:
		return deref(s.Muted)
	case DimensionDeafened:
		return deref(s.Deafened)
	case DimensionStreaming:
		return deref(s.Streaming)
	case DimensionVideo:
		return deref(s.Video)
	default:
		return time.Time{}, false
	}
}

// ActiveFlags reports which toggleable dimensions are currently active, losing
// their start timestamps. Used when a move carries the active set to a new
// channel under fresh segment keys.
func (s State) ActiveFlags() Flags {
	return Flags{
		Muted:     s.Muted != nil,
		Deafened:  s.Deafened != nil,
		Streaming: s.Streaming != nil,
		Video:     s.Video != nil,
	}
}

func (s *State) setStart(d Dimension, at time.Time) {
	t := at
	switch d {
	case DimensionConnected:
		s.Connected = at
	case DimensionMuted:
		s.Muted = &t
	case DimensionDeafened:
		s.Deafened = &t
	case DimensionStreaming:
		s.Streaming = &t
	case DimensionVideo:
		s.Video = &t
	}
}

func (s *State) clearStart(d Dimension) {
	switch d {
	case DimensionMuted:
		s.Muted = nil
	case DimensionDeafened:
		s.Deafened = nil
	case DimensionStreaming:
		s.Streaming = nil
	case DimensionVideo:
		s.Video = nil
	}
}

func deref(t *time.Time) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}
