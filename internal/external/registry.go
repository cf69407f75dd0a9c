package external

import (
	"pushgate/internal/config"
	"pushgate/internal/security"
	"pushgate/internal/types"
)

// gatewayMaxRedirects bounds redirect chains from the gateway. The gateway is
// not expected to redirect at all; the allowance covers load balancer quirks.
const gatewayMaxRedirects = 3

// ---------------------------------------------------------------------------
// Provider Factory
//
// Central factory that instantiates the push provider based on configuration.
// In test/local mode, or when no gateway API key is configured, it returns the
// stub implementation that logs sends without requiring real credentials. In
// production mode it returns the real gateway client with a strict per-attempt
// timeout.
// ---------------------------------------------------------------------------

// NewProviderFromConfig initializes the PushProvider for the current
// environment. The returned provider is the single delivery edge the worker
// talks to; everything above it (breaker, rate limiter, retry router) is
// provider-agnostic.
func NewProviderFromConfig(cfg *config.Config, logger types.Logger) PushProvider {
	useStub := cfg.IsTestMode || cfg.Environment == "local" || cfg.Provider.APIKey.Unmask() == ""

	if useStub {
		logger.Info("initializing push provider in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
			"fail_every_n", cfg.Provider.StubFailEveryN,
		)
		return NewStubPushProvider(
			cfg.Provider.StubFailEveryN,
			cfg.Provider.StubLatency,
			logger.With("mode", "stub"),
		)
	}

	logger.Info("initializing push provider in PRODUCTION mode",
		"environment", cfg.Environment,
		"gateway_url", cfg.Provider.GatewayURL,
	)

	// The HTTP client timeout bounds a single attempt; transport retries
	// inside BaseClient multiply it. The egress-guarded client refuses to
	// dial private and link-local ranges: the gateway URL is env-injected,
	// and neither a bad value nor a redirect may reach internal services.
	// Private-network gateway emulators should run in test mode instead.
	httpClient := security.NewSafeHTTPClient(cfg.Provider.Timeout, gatewayMaxRedirects)
	return NewPushGatewayClient(httpClient, PushGatewayConfig{
		GatewayURL: cfg.Provider.GatewayURL,
		APIKey:     cfg.Provider.APIKey.Unmask(),
		MaxRetries: cfg.Provider.MaxRetries,
		Logger:     logger.With("client", "push-gateway"),
	})
}
