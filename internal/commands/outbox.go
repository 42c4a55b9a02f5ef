package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskflow/pkg/mq"
	"taskflow/pkg/outbox"
)

var (
	replayID     int64
	replayFailed bool
	replayLimit  int
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and repair the event outbox",
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-publish one outbox event (--id) or all failed ones (--failed)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if (replayID > 0) == replayFailed {
			return errors.New("exactly one of --id or --failed is required")
		}

		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		pool, err := openDB(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()

		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		defer publisher.Close()

		replay := outbox.NewReplayService(outbox.NewRepository(pool), publisher, log, cfg.Outbox.MaxRetries)

		if replayID > 0 {
			if err := replay.ReplayEvent(ctx, replayID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed outbox event %d\n", replayID)
			return nil
		}

		n, err := replay.ReplayFailedEvents(ctx, replayLimit)
		if err != nil {
			return err
		}
		log.Info("Replayed failed outbox events", zap.Int("count", n), zap.Int("limit", replayLimit))
		fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d failed outbox events\n", n)
		return nil
	},
}

func init() {
	replayCmd.Flags().Int64Var(&replayID, "id", 0, "outbox event id")
	replayCmd.Flags().BoolVar(&replayFailed, "failed", false, "replay every failed event")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum events to replay with --failed")
	outboxCmd.AddCommand(replayCmd)
}
