package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/alphaintel/modelgov/pkg/models"
)

// NewEnqueueCmd queues a manual retrain job.
func NewEnqueueCmd() *cobra.Command {
	var (
		horizon    string
		task       string
		network    string
		datasetRef string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a manual retrain job",
		Long:  `Queues a retrain job for a classifier. The rollback guard runs first; a blocked pipeline refuses the job.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			body := map[string]interface{}{
				"horizon": horizon,
				"task":    task,
				"network": network,
				"training_config": models.TrainingConfig{
					DatasetRef: datasetRef,
				},
			}

			var resp struct {
				JobID string `json:"job_id"`
			}
			if err := client.send(http.MethodPost, "/api/v1/lifecycle/jobs", body, &resp); err != nil {
				return err
			}
			fmt.Printf("Enqueued retrain job %s\n", resp.JobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&horizon, "horizon", "7d", "Horizon (7d, 30d)")
	cmd.Flags().StringVar(&task, "task", "market_classifier", "Classifier task")
	cmd.Flags().StringVar(&network, "network", "ethereum", "Blockchain network")
	cmd.Flags().StringVar(&datasetRef, "dataset", "", "Dataset export reference (latest when empty)")

	return cmd
}

// NewPromoteCmd promotes a shadow model.
func NewPromoteCmd() *cobra.Command {
	var horizon string

	cmd := &cobra.Command{
		Use:   "promote <model-id>",
		Short: "Promote a shadow model to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			body := map[string]string{"horizon": horizon}
			var resp map[string]string
			if err := client.send(http.MethodPost, "/api/v1/lifecycle/promote/"+args[0], body, &resp); err != nil {
				return err
			}
			fmt.Printf("Promoted model %s on horizon %s\n", args[0], horizon)
			return nil
		},
	}

	cmd.Flags().StringVar(&horizon, "horizon", "", "Horizon (7d, 30d)")
	_ = cmd.MarkFlagRequired("horizon")

	return cmd
}

// NewRollbackCmd reverts a horizon to its previous model.
func NewRollbackCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "rollback <horizon>",
		Short: "Roll the active model back one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			body := map[string]string{"reason": reason}
			var st models.ActiveModelState
			if err := client.send(http.MethodPost, "/api/v1/lifecycle/rollback/"+args[0], body, &st); err != nil {
				return err
			}
			fmt.Printf("Rolled back horizon %s, now serving %s\n", args[0], st.ActiveModelID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")

	return cmd
}

// NewKillSwitchCmd flips or shows the global kill switch.
func NewKillSwitchCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "killswitch [on|off]",
		Short: "Show or set the global kill switch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			if len(args) == 0 {
				var resp struct {
					Enabled bool `json:"enabled"`
				}
				if err := client.get("/api/v1/lifecycle/killswitch", &resp); err != nil {
					return err
				}
				if resp.Enabled {
					fmt.Println("Kill switch: ON (all automated retrains and promotions are blocked)")
				} else {
					fmt.Println("Kill switch: OFF")
				}
				return nil
			}

			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("argument must be on or off, got %q", args[0])
			}

			body := map[string]interface{}{"enabled": enabled, "reason": reason}
			if err := client.send(http.MethodPut, "/api/v1/lifecycle/killswitch", body, nil); err != nil {
				return err
			}
			fmt.Printf("Kill switch set to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")

	return cmd
}

// NewAuditCmd lists recent audit entries.
func NewAuditCmd() *cobra.Command {
	var (
		limit   int
		horizon string
		action  string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			path := fmt.Sprintf("/api/v1/lifecycle/audit?limit=%d", limit)
			if horizon != "" {
				path += "&horizon=" + horizon
			}
			if action != "" {
				path += "&action=" + action
			}

			var resp struct {
				Entries []models.AuditLogEntry `json:"entries"`
			}
			if err := client.get(path, &resp); err != nil {
				return err
			}

			for _, e := range resp.Entries {
				fmt.Printf("%s  %-20s  %-4s  %-10s  %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Horizon, e.TriggeredBy, e.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	cmd.Flags().StringVar(&horizon, "horizon", "", "Filter by horizon")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action")

	return cmd
}
