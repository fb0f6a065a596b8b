/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"

	"github.com/ssargent/distree/internal/adminapi"
	"github.com/ssargent/distree/internal/coordinator"
	"github.com/ssargent/distree/internal/network"
	"github.com/ssargent/distree/pkg/config"
)

// rootCmd represents the base command when called without any subcommands:
// it stands up a peer (network + coordinator + admin server) and drops
// into the root/getlease/migrate REPL.
var rootCmd = &cobra.Command{
	Use:   "distree",
	Short: "distree - a distributed B+ tree peer",
	Long: `distree runs one peer of a distributed B+ tree: an in-memory
shard of the tree, a libp2p overlay for lease/migrate/insert-on-remote-
parent requests, gossip-based load balancing, and an admin HTTP surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeer(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("listen", "", "libp2p listen multiaddr (overrides the config file)")
	rootCmd.PersistentFlags().StringArray("bootstrap", nil, "bootstrap peer multiaddr, repeatable (overrides the config file)")
	rootCmd.PersistentFlags().Int("secret-key-seed", -1, "deterministic peer identity seed (0-255); omit for a random identity")
	rootCmd.PersistentFlags().String("config", "", "path to the peer config YAML (default: "+config.GetDefaultConfigPath()+")")
	rootCmd.PersistentFlags().String("admin-addr", "", "admin/metrics HTTP listen address (overrides the config file)")
}

// loadEffectiveConfig bootstraps the config file if missing, then applies
// any CLI flag overrides on top of it.
func loadEffectiveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg, err := config.BootstrapConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading peer config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetStringArray("bootstrap"); len(v) > 0 {
		cfg.BootstrapPeers = v
	}
	if v, _ := cmd.Flags().GetString("admin-addr"); v != "" {
		cfg.AdminAddr = v
	}

	return cfg, nil
}

func runPeer(cmd *cobra.Command) error {
	cfg, err := loadEffectiveConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			fmt.Fprintf(os.Stderr, "distree: sentry init failed: %v\n", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seedOpt *byte
	if seed, _ := cmd.Flags().GetInt("secret-key-seed"); seed >= 0 && seed <= 255 {
		b := byte(seed)
		seedOpt = &b
	}

	net, err := network.New(ctx, network.Options{SecretKeySeed: seedOpt})
	if err != nil {
		return fmt.Errorf("starting libp2p host: %w", err)
	}
	fmt.Printf("distree: local peer id %s\n", net.LocalPeer())

	coord := coordinator.New(net.LocalPeer(), net)

	listenAddr, err := ma.NewMultiaddr(cfg.Listen)
	if err != nil {
		return fmt.Errorf("parsing listen multiaddr %q: %w", cfg.Listen, err)
	}
	if err := net.StartListening(ctx, listenAddr); err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}

	for _, peerAddr := range cfg.BootstrapPeers {
		if err := dialBootstrapPeer(ctx, net, peerAddr); err != nil {
			fmt.Fprintf(os.Stderr, "distree: dialing bootstrap peer %s: %v\n", peerAddr, err)
		}
	}

	if err := coord.StartGossip(ctx, gossipInterval(cfg)); err != nil {
		return fmt.Errorf("starting gossip: %w", err)
	}
	defer coord.StopGossip()

	go func() {
		if err := adminapi.ListenAndServe(ctx, coord, adminapi.Config{Addr: cfg.AdminAddr}); err != nil {
			fmt.Fprintf(os.Stderr, "distree: admin server exited: %v\n", err)
		}
	}()

	runREPL(ctx, coord)
	return nil
}
