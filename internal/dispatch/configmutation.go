package dispatch

import (
	"context"
	"strings"

	"github.com/opsfolio/udi-pgp/internal/config"
	"github.com/opsfolio/udi-pgp/internal/metrics"
	"github.com/opsfolio/udi-pgp/internal/parser"
)

// applyConfigMutation handles the ConfigMutation statement kind
// (§4.F): SET/BEGIN/COMMIT are acknowledged without touching the
// config; an INSERT/DELETE against udi_pgp_supplier upserts or removes
// a descriptor via the state manager, which is the only write path
// into the registry's desired state (§6 "no separate admin API").
func (d *Dispatcher) applyConfigMutation(ctx context.Context, stmt *parser.Statement) (string, error) {
	if stmt.Mutation == nil {
		return "OK", nil
	}

	if stmt.Mutation.Delete {
		if err := d.Manager.RemoveSupplier(ctx, stmt.Mutation.ID); err != nil {
			return "", err
		}
		if err := d.reconcileRegistry(ctx); err != nil {
			return "", err
		}
		return "OK", nil
	}

	desc := config.SupplierDescriptor{
		ID:   stmt.Mutation.ID,
		Type: stmt.Mutation.Type,
		Mode: config.Mode(stmt.Mutation.Mode),
	}
	if desc.Type == "" {
		desc.Type = "exec"
	}
	if desc.Mode == "" {
		desc.Mode = config.ModeLocal
	}
	if stmt.Mutation.Targets != "" {
		for _, t := range strings.Split(stmt.Mutation.Targets, ",") {
			if t = strings.TrimSpace(t); t != "" {
				desc.Targets = append(desc.Targets, t)
			}
		}
	}

	if err := d.Manager.InsertSupplier(ctx, desc.ID, desc); err != nil {
		return "", err
	}
	if err := d.reconcileRegistry(ctx); err != nil {
		return "", err
	}
	return "OK", nil
}

// reconcileRegistry re-reads the config and reconciles the live
// registry against it, so routing for a just-inserted or just-removed
// supplier id is correct by the time this statement's CommandComplete
// is sent (§5: "after an InsertSupplier reply is received,
// subsequent ReadConfig snapshots are guaranteed to include it").
func (d *Dispatcher) reconcileRegistry(ctx context.Context) error {
	cfg, err := d.Manager.ReadConfig(ctx)
	if err != nil {
		return err
	}
	if err := d.Registry.Reconcile(cfg.Suppliers); err != nil {
		metrics.RegistryReconciles.WithLabelValues("error").Inc()
		return err
	}
	metrics.RegistryReconciles.WithLabelValues("ok").Inc()
	return nil
}
