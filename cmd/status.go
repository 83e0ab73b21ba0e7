package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/onboard-cli/internal/model"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <workspace-id>",
	Short: "Show reconciled onboarding progress for a workspace",
	Long:  "Fetches one snapshot of the workspace's status rows and counts, reconciles it, and prints the result. Never starts any stage.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "status", false)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := sessionOptions()
		opts.ReadOnly = true
		s := env.NewSession(args[0], opts)
		defer s.Close()

		view, err := s.Tick(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if statusJSON {
			return writeViewJSON(os.Stdout, view)
		}
		formatView(os.Stdout, view)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the view as JSON")
	rootCmd.AddCommand(statusCmd)
}

func writeViewJSON(out io.Writer, v *model.View) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode view")
}

// formatView writes a tabular representation of a view to out.
func formatView(out io.Writer, v *model.View) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TRACK\tBADGE\tSTATUS\tPROGRESS\tCOUNTS\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t-----\t------\t--------\t------\t------")

	for _, t := range v.Tracks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\t%s\n",
			t.Title,
			t.Badge,
			t.Label,
			t.ProgressPercent,
			formatCounts(t.Counts),
			trackDetail(t),
		)
	}
	_ = w.Flush()

	complete := "no"
	if v.AllComplete {
		complete = "yes"
	}
	_, _ = fmt.Fprintf(out, "\nworkspace %s  tick %d  all complete: %s\n", v.WorkspaceID, v.Tick, complete)
}

func formatCounts(counts []model.CountValue) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s %d", c.Label, c.Value))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// trackDetail picks the single most relevant note for a track.
func trackDetail(t model.TrackView) string {
	switch {
	case t.Error != nil:
		return truncate(t.Error.Message, 80)
	case t.DispatchError != nil:
		return truncate(t.DispatchError.Message, 80)
	case t.Warning != nil:
		return truncate(t.Warning.Message, 80)
	case t.Dispatching:
		return "starting..."
	case t.CurrentItem != "":
		return t.CurrentItem
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
