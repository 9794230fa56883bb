package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alphaintel/modelgov/pkg/models"
)

// NewStatusCmd shows the active-model state for all or one horizon.
func NewStatusCmd() *cobra.Command {
	var horizon string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show active model state",
		Long:  `Shows which model version serves each horizon, its health, and when it was last switched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			if horizon != "" {
				var st models.ActiveModelState
				if err := client.get("/api/v1/lifecycle/state/"+horizon, &st); err != nil {
					return err
				}
				return printJSON(st)
			}

			var resp struct {
				States []models.ActiveModelState `json:"states"`
			}
			if err := client.get("/api/v1/lifecycle/state", &resp); err != nil {
				return err
			}

			if len(resp.States) == 0 {
				fmt.Println("No active model state recorded yet")
				return nil
			}
			for _, st := range resp.States {
				fmt.Printf("%-4s  active=%s  previous=%s  health=%s  critical_windows=%d  switched=%s (%s)\n",
					st.Horizon, st.ActiveModelID, orDash(st.PreviousModelID), st.HealthStatus,
					st.ConsecutiveCriticalWindows, st.SwitchedAt.Format("2006-01-02 15:04:05"), st.SwitchReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&horizon, "horizon", "", "Horizon (7d, 30d)")

	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
