package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"growtube/internal/api"
	"growtube/internal/config"
	"growtube/internal/game"
	"growtube/internal/notify"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadWatchFromEnv()
	var plain bool

	root := &cobra.Command{
		Use:          "marketwatch",
		Short:        "Live GrowTube market prices",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := api.NewClient(strings.TrimSpace(cfg.APIBaseURL))
			rdb, err := notify.Dial(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			feed := notify.NewRedis(rdb, cfg.MarketChannel)

			if plain {
				return streamPlain(ctx, os.Stdout, client, feed)
			}
			return runTUI(ctx, client, feed)
		},
	}
	root.Flags().StringVar(&cfg.APIBaseURL, "api-url", cfg.APIBaseURL, "growtube HTTP API base URL")
	root.Flags().StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL carrying price changes")
	root.Flags().StringVar(&cfg.MarketChannel, "channel", cfg.MarketChannel, "Redis pub/sub channel")
	root.Flags().BoolVar(&plain, "plain", false, "print changes as lines instead of the full-screen view")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(ctx context.Context, client *api.Client, feed *notify.Redis) error {
	p := tea.NewProgram(newModel(client, time.Now), tea.WithAltScreen(), tea.WithContext(ctx))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		err := feed.Subscribe(subCtx, func(c game.PriceChange) { p.Send(priceMsg(c)) })
		if err != nil && subCtx.Err() == nil {
			p.Send(feedErrMsg{err: err})
		}
	}()

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
