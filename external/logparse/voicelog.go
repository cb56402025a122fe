package logparse

import (
	"regexp"
	"time"

	"github.com/spslater/voicetally/internal/replay"
)

// voicelog parses the free-text voice log kept by the logger bot that watched
// the guild before this tracker existed. Lines look like:
//
//	[2021-03-04 17:22:01] luna#1234: joined voice channel "General"
//	[2021-03-04 17:25:48] luna#1234: moved from "General" to "Games"
//	[2021-03-04 17:30:02] luna#1234: deafened
//	[2021-03-04 18:01:13] luna#1234: left voice channel "Games"
//
// The bot never logged mute changes, so the vocabulary has no mute actions.

const timestampLayout = "2006-01-02 15:04:05"

var (
	lineRE   = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] (\S+): (.+)$`)
	joinRE   = regexp.MustCompile(`^joined voice channel "(.+)"$`)
	leftRE   = regexp.MustCompile(`^left voice channel "(.+)"$`)
	movedRE  = regexp.MustCompile(`^moved from "(.+)" to "(.+)"$`)
	streamRE = regexp.MustCompile(`^(started|stopped) streaming$`)
	videoRE  = regexp.MustCompile(`^(started|stopped) video$`)
)

type VoiceLogParser struct {
	loc *time.Location
}

func NewVoiceLogParser(loc *time.Location) *VoiceLogParser {
	if loc == nil {
		loc = time.UTC
	}
	return &VoiceLogParser{loc: loc}
}

func (p *VoiceLogParser) Parse(line string) (replay.Event, bool) {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return replay.Event{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, m[1], p.loc)
	if err != nil {
		return replay.Event{}, false
	}
	ev := replay.Event{UserID: m[2], Timestamp: ts}
	return p.parseBody(ev, m[3])
}

func (p *VoiceLogParser) parseBody(ev replay.Event, body string) (replay.Event, bool) {
	if m := joinRE.FindStringSubmatch(body); m != nil {
		ev.Action = replay.ActionJoin
		ev.Channel = m[1]
		return ev, true
	}
	if m := leftRE.FindStringSubmatch(body); m != nil {
		ev.Action = replay.ActionLeft
		ev.Channel = m[1]
		return ev, true
	}
	if m := movedRE.FindStringSubmatch(body); m != nil {
		ev.Action = replay.ActionMove
		ev.FromChannel = m[1]
		ev.ToChannel = m[2]
		return ev, true
	}
	if m := streamRE.FindStringSubmatch(body); m != nil {
		if m[1] == "started" {
			ev.Action = replay.ActionStreamOn
		} else {
			ev.Action = replay.ActionStreamOff
		}
		return ev, true
	}
	if m := videoRE.FindStringSubmatch(body); m != nil {
		if m[1] == "started" {
			ev.Action = replay.ActionVideoOn
		} else {
			ev.Action = replay.ActionVideoOff
		}
		return ev, true
	}
	switch body {
	case "deafened":
		ev.Action = replay.ActionDeafOn
		return ev, true
	case "undeafened":
		ev.Action = replay.ActionDeafOff
		return ev, true
	}
	return replay.Event{}, false
}
