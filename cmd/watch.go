package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/notify"
)

var (
	watchJSON     bool
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <workspace-id>",
	Short: "Follow a workspace's onboarding until every track completes",
	Long:  "Mounts a local session for the workspace: polls, starts stages whose upstream finished, and prints each tick. Exits when all tracks are complete or on interrupt.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		env, err := initEnv(ctx, "watch", true)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := sessionOptions()
		if watchInterval > 0 {
			opts.Interval = watchInterval
		}
		opts.OnTick = func(v *model.View) {
			if watchJSON {
				_ = writeViewJSON(os.Stdout, v)
			} else {
				formatView(os.Stdout, v)
			}
			if v.AllComplete {
				zap.L().Info("all onboarding tracks complete", zap.String("workspace_id", v.WorkspaceID))
				cancel()
			}
		}

		s := env.NewSession(args[0], opts)
		defer s.Close()

		hub := notify.NewHub()
		unregister := hub.Register(args[0], s.Wake)
		defer unregister()
		_, closeNotify, err := startNotify(ctx, env, hub)
		if err != nil {
			return err
		}
		defer closeNotify()

		return s.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print each view as JSON")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default from config)")
	rootCmd.AddCommand(watchCmd)
}
