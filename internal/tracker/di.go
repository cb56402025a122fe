package tracker

import (
	"github.com/samber/do/v2"
	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/discord"
	"github.com/spslater/voicetally/internal/ledger"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Tracker, error) {
		cfg := do.MustInvoke[*config.Config](i)
		led := do.MustInvoke[ledger.Ledger](i)
		return New(cfg, led), nil
	})
	do.Provide(injector, func(i do.Injector) (*Reconciler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		t := do.MustInvoke[*Tracker](i)
		return NewReconciler(cfg, dc, t), nil
	})
}
