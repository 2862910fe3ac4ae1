// Command candyctl inspects and adjusts the Candy Heist ledger from a terminal. It talks to the
// same store the bot is configured with.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Proton-105/candy-heist/internal/banter"
	"github.com/Proton-105/candy-heist/internal/game"
	"github.com/Proton-105/candy-heist/internal/store"
	"github.com/Proton-105/candy-heist/pkg/config"
	"github.com/Proton-105/candy-heist/pkg/logger"
	"github.com/Proton-105/candy-heist/pkg/random"
	appredis "github.com/Proton-105/candy-heist/pkg/redis"
)

// session is what every subcommand works with.
type session struct {
	resolver *game.Resolver
	close    func() error
}

type opener func(ctx context.Context, configDir string) (*session, error)

func main() {
	if err := newRootCmd(openSession, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var (
		configDir string
		sess      *session
	)

	root := &cobra.Command{
		Use:          "candyctl",
		Short:        "Candy Heist ledger admin",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			sess, err = open(cmd.Context(), configDir)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if sess == nil || sess.close == nil {
				return nil
			}
			return sess.close()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&configDir, "config-dir", "./configs", "directory holding <APP_ENV>.yaml")

	resolver := func() *game.Resolver { return sess.resolver }
	root.AddCommand(
		newLeaderboardCmd(resolver),
		newPlayersCmd(resolver),
		newLockCmd(resolver),
	)
	return root
}

func newLeaderboardCmd(resolver func() *game.Resolver) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the richest players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			standings, err := resolver().Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(standings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nobody has any Candy Canes yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tPLAYER\tCANDY")
			for i, s := range standings {
				fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, s.UserID, s.Balance)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "rows to show (default: configured leaderboard size)")
	return cmd
}

func newPlayersCmd(resolver func() *game.Resolver) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "players",
		Short: "List players holding candy with their lock and DM flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			standings, err := resolver().ActivePlayers(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLAYER\tCANDY\tLOCKED\tDMS")
			for _, s := range standings {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.UserID, s.Balance, yesNo(s.Locked), onOff(!s.NotifyOptOut))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d active players\n", len(standings))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "rows to show (default 25)")
	return cmd
}

func newLockCmd(resolver func() *game.Resolver) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <telegram-user-id>",
		Short: "Lock a player's stocking for the configured lock duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			until, err := resolver().Ledger().Lock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stocking of %s locked until %s\n", args[0], until.Format(time.RFC3339))
			return nil
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func openSession(ctx context.Context, configDir string) (*session, error) {
	cfg, _, err := config.LoadFrom(configDir)
	if err != nil {
		return nil, err
	}
	log := logger.New(*cfg).With(slog.String("app", "candyctl"))

	var rdb *goredis.Client
	if cfg.Store.Backend == "redis" {
		if rdb, err = appredis.New(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}

	rules := game.RulesFromConfig(cfg.Game)
	s, err := store.Open(ctx, *cfg, rdb, store.Options{StarterBalance: rules.StarterBalance, Logger: log})
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	rnd, err := random.New()
	if err != nil {
		return nil, err
	}
	// candyctl never resolves an interaction, so the built-in banter is enough.
	resolver := game.NewResolver(s, banter.NewRotation(banter.DefaultCatalog(), rnd), rnd,
		game.WithRules(rules),
		game.WithLogger(log),
	)

	return &session{
		resolver: resolver,
		close: func() error {
			err := s.Close()
			if rdb != nil {
				if cerr := rdb.Close(); err == nil {
					err = cerr
				}
			}
			return err
		},
	}, nil
}
