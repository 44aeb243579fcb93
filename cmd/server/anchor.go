package main

import (
	"context"
	"fmt"
	"log/slog"

	"certify/internal/anchor"
	"certify/internal/anchor/cache"
	"certify/internal/anchor/ethereum"
	"certify/internal/anchor/simulated"
	"certify/internal/anchor/tracing"
	"certify/internal/platform/config"
	"certify/internal/platform/health"
)

// openAnchor builds the ledger client for cfg.Anchor.Mode. It returns a nil
// client when anchoring is disabled.
func openAnchor(ctx context.Context, cfg *config.Server, in *infra, checks *health.Handler, log *slog.Logger) (anchor.Client, error) {
	var client anchor.Client

	switch cfg.Anchor.Mode {
	case config.AnchorDisabled:
		log.Warn("ledger anchoring disabled, certificates are issued without anchors")
		return nil, nil
	case config.AnchorLive:
		live, rpc, err := ethereum.Dial(ctx, ethereum.Config{
			RPCURL:          cfg.Anchor.RPCURL,
			ContractAddress: cfg.Anchor.ContractAddress,
			PrivateKey:      cfg.Anchor.PrivateKey,
			NetworkName:     cfg.Anchor.NetworkName,
			ExplorerURL:     cfg.Anchor.ExplorerURL,
			Timeout:         cfg.Anchor.Timeout,
		}, ethereum.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		in.onClose(rpc.Close)
		client = live
	default:
		network := simulated.New().Network()
		if cfg.Anchor.NetworkName != "" {
			network.Name = cfg.Anchor.NetworkName
		}
		network.ExplorerBaseURL = cfg.Anchor.ExplorerURL
		client = simulated.New(simulated.WithNetwork(network))
	}

	if in.redis != nil {
		client = cache.Wrap(client, cache.NewRedisCache(in.redis.Client), cfg.Anchor.CacheTTL, cache.WithLogger(log))
	}
	client = tracing.Wrap(client, tracing.NewOTel())

	checks.RegisterCheck("ledger", func(ctx context.Context) error {
		state, err := client.WalletState(ctx)
		if err != nil {
			return err
		}
		if !state.Connected {
			return fmt.Errorf("signing wallet disconnected")
		}
		return nil
	})

	network := client.Network()
	log.Info("ledger client ready",
		"mode", cfg.Anchor.Mode,
		"network", network.Name,
		"chain_id", network.ChainID,
		"contract", network.ContractAddress,
		"live_verify", cfg.Anchor.LiveVerify,
	)
	return client, nil
}
