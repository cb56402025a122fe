package report

const (
	commandVoiceTime = "voicetime"
	commandVoiceTop  = "voicetop"

	slashCommandTimeDescription = "Show how long you have spent in voice recently."
	slashCommandTopDescription  = "Show who has spent the most time in voice recently."

	messageEphemeralWrongGuild     = ":warning: **This command can't be used in this server.**"
	messageEphemeralUnknownCommand = ":warning: **Unknown command.**"
	messageEphemeralLookupFailed   = ":warning: **Couldn't look up voice time right now. Try again in a bit.**"
	messageEphemeralNoData         = "No voice activity recorded yet."
)

var dimensionLabels = map[string]string{
	"connected": "In voice",
	"muted":     "Muted",
	"deafened":  "Deafened",
	"streaming": "Streaming",
	"video":     "Camera on",
}
