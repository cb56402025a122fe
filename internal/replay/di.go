package replay

import (
	"github.com/samber/do/v2"
	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/discord"
	"github.com/spslater/voicetally/internal/ledger"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Replayer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		led := do.MustInvoke[ledger.Ledger](i)
		parser := do.MustInvoke[LogParser](i)
		dc := do.MustInvoke[discord.Client](i)
		return New(cfg, led, parser, dc), nil
	})
}
