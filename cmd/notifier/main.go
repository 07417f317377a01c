package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/collectible-trade/internal/adapter/messaging"
	"github.com/rl1809/collectible-trade/internal/adapter/presenter"
	"github.com/rl1809/collectible-trade/internal/config"
	"github.com/rl1809/collectible-trade/internal/logging"
)

// sessionRetention is how long the notifier remembers a session's last
// version after its final event.
const sessionRetention = 30 * time.Minute

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "trade-notifier",
	Short: "Consume trade events and deliver per-player notices",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development, verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if len(cfg.Presenter.Brokers) == 0 || cfg.Presenter.Topic == "" {
			return fmt.Errorf("kafka brokers and topic are required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		consumer := messaging.NewConsumer(cfg.Presenter.Brokers, cfg.Presenter.Topic, cfg.Presenter.GroupID, logger)
		defer consumer.Close()

		logger.Info("notifier started",
			zap.Strings("brokers", cfg.Presenter.Brokers),
			zap.String("topic", cfg.Presenter.Topic),
			zap.String("group_id", cfg.Presenter.GroupID),
		)
		err = consumer.Consume(ctx, newNoticeHandler(logger, presenter.NewSequencer(sessionRetention)))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// newNoticeHandler renders each event into notices. Delivery to the chat
// platform is the bot's job; here every notice is logged. Events the
// sequencer rejects are superseded and skipped.
func newNoticeHandler(logger *zap.Logger, seq *presenter.Sequencer) messaging.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		ev, err := presenter.DecodeEvent(value)
		if err != nil {
			return err
		}
		if !seq.Accept(ev) {
			logger.Debug("skipping superseded event",
				zap.String("type", ev.Type),
				zap.String("session_id", ev.SessionID),
			)
			return nil
		}
		for _, n := range ev.Notices() {
			logger.Info(n.Text,
				zap.String("type", ev.Type),
				zap.String("session_id", ev.SessionID),
				zap.String("to", n.UserID),
				zap.Time("occurred_at", ev.OccurredAt),
			)
		}
		return nil
	}
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
