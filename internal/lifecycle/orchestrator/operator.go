package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Operator controls route through the same guard, policy and
// atomic-switch primitives the scheduled cycles use. There is no
// bypass path.

// ManualEnqueue queues a retrain on operator request. The guard runs
// first: a blocked pipeline refuses the job before anything is created.
func (o *Orchestrator) ManualEnqueue(ctx context.Context, horizon models.Horizon, task models.Task, network string, cfg models.TrainingConfig) (string, error) {
	res, err := o.guard.Check(ctx, horizon)
	if err != nil {
		return "", err
	}
	if !res.Allowed {
		o.auditGuardBlocked(LoopSpec{Horizon: horizon, Task: task, Network: network}, res.Reasons, models.TriggerManual)
		return "", errors.NewGuardError(errors.CodeGuardBlocked, strings.Join(res.Reasons, "; "))
	}

	jobID, err := o.queue.Enqueue(ctx, task, network, models.ReasonManual, cfg)
	if err != nil {
		return "", err
	}
	if err := o.guard.RecordAttempt(ctx, horizon); err != nil {
		o.logger.WithError(err).Warn("Failed to stamp guard cooldown")
	}
	return jobID, nil
}

// ManualPromote promotes a shadow model on operator request. The guard
// still applies; only the policy evaluation is the operator's own
// judgment.
func (o *Orchestrator) ManualPromote(ctx context.Context, horizon models.Horizon, modelID string) error {
	candidate, err := o.registry.Get(ctx, modelID)
	if err != nil {
		return err
	}
	if candidate.Status != models.ModelStatusShadow {
		return errors.NewRegistryError(errors.CodeModelNotShadow,
			fmt.Sprintf("Model %s has status %s, only SHADOW models can be promoted", modelID, candidate.Status))
	}

	res, err := o.guard.CheckPromotion(ctx, horizon)
	if err != nil {
		return err
	}
	if !res.Allowed {
		o.audit.Append(models.AuditLogEntry{
			Horizon:        horizon,
			ModelVersionID: modelID,
			Action:         models.AuditPromoteBlocked,
			Reason:         strings.Join(res.Reasons, "; "),
			TriggeredBy:    models.TriggerManual,
		})
		return errors.NewGuardError(errors.CodeGuardBlocked, strings.Join(res.Reasons, "; "))
	}

	return o.promoteAsUnit(ctx, horizon, candidate, models.TriggerManual, "Manual promotion")
}

// ManualRollback reverts the horizon one step on operator request.
func (o *Orchestrator) ManualRollback(ctx context.Context, horizon models.Horizon, reason string) error {
	if reason == "" {
		reason = "Manual rollback"
	}
	return o.rollback(ctx, horizon, models.TriggerManual, reason)
}

// SetKillSwitch flips the global kill switch and audits the change.
func (o *Orchestrator) SetKillSwitch(ctx context.Context, enabled bool, reason string) error {
	if err := o.switches.SetKillSwitch(ctx, enabled); err != nil {
		return err
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	if reason == "" {
		reason = fmt.Sprintf("Kill switch %s by operator", verb)
	}
	o.audit.Append(models.AuditLogEntry{
		Action:      models.AuditKillSwitchChanged,
		Reason:      reason,
		TriggeredBy: models.TriggerManual,
	})
	return nil
}

// TriggerCycle runs one cycle immediately for the loop, outside its
// schedule. Used by the CLI.
func (o *Orchestrator) TriggerCycle(ctx context.Context, spec LoopSpec) (string, error) {
	return o.RunCycle(ctx, spec, models.TriggerManual)
}
