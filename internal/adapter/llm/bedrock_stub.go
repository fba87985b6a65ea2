//go:build !bedrock

package llm

import (
	"log/slog"

	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
)

func newBedrock(cfg config.ProviderConfig, _ *slog.Logger) (domain.LLMProvider, error) {
	return nil, domain.NewDomainError("llm.newBedrock", domain.ErrConfiguration,
		"provider "+cfg.Name+" needs a binary built with -tags bedrock")
}
