package logparse

import (
	"fmt"
	"time"

	"github.com/samber/do/v2"
	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/replay"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (replay.LogParser, error) {
		cfg := do.MustInvoke[*config.Config](i)
		loc, err := time.LoadLocation(cfg.ImportTimezone)
		if err != nil {
			return nil, fmt.Errorf("load import timezone: %w", err)
		}
		return NewVoiceLogParser(loc), nil
	})
}
