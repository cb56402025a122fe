package jobs

import (
	"github.com/samber/do/v2"
	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/ledger"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*CompactionJob, error) {
		cfg := do.MustInvoke[*config.Config](i)
		led := do.MustInvoke[ledger.Ledger](i)
		return NewCompactionJob(cfg, led), nil
	})
}
