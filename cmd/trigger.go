package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/onboard-cli/internal/trigger"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <workspace-id> <workflow>",
	Short: "Start a workflow stage by hand",
	Long:  "Writes a handoff status record and sends the stage-start call for the workflow, regardless of its dependency gate.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "trigger", true)
		if err != nil {
			return err
		}
		defer env.Close()

		wf, err := parseWorkflow(env.Registry, args[1])
		if err != nil {
			return err
		}

		d := trigger.NewDispatcher(args[0], env.Registry, env.Transport, env.Store,
			trigger.WithCallbackBase(cfg.Trigger.CallbackBaseURL),
			trigger.WithTimeout(cfg.Trigger.Timeout()),
		)
		defer d.Close()

		req, err := d.DispatchNow(ctx, wf)
		if err != nil {
			return eris.Wrapf(err, "trigger %s", wf)
		}

		fmt.Printf("started %s for workspace %s via %s (handoff %s)\n", req.Workflow, req.WorkspaceID, env.Transport.Name(), req.HandoffID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
