package webhook

import (
	"github.com/samber/do/v2"
	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/webhook"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (webhook.Sender, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewHTTPSender(cfg.ImportWebhookURL), nil
	})
}
