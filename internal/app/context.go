package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"questlog/internal/config"
	"questlog/internal/domain"
	"questlog/internal/repo"
)

// ResolveWorkspaceAndConfig picks the active workspace and ensures workspace
// and config rows exist, seeding defaults if missing. The override wins;
// otherwise a database with exactly one workspace resolves to it. A missing
// workspace is created on the fly with the caller as founding admin.
func ResolveWorkspaceAndConfig(ctx context.Context, workspaceOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	workspaceID := workspaceOverride
	if workspaceID == "" {
		if w, err := r.SingleWorkspace(ctx); err == nil {
			workspaceID = w.ID
		} else {
			return "", nil, fmt.Errorf("workspace not specified; use --workspace")
		}
	}
	seedCfg := config.Default(workspaceID)

	if _, err := r.GetWorkspace(ctx, workspaceID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createWorkspace(ctx, r, workspaceID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetWorkspaceConfig(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertWorkspaceConfig(ctx, workspaceID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed workspace config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Workspace.ID = workspaceID
	return workspaceID, cfg, nil
}

// createWorkspace inserts a minimal workspace footprint using the seed config.
func createWorkspace(ctx context.Context, r repo.Repo, workspaceID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(workspaceID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO workspaces(id,name,status,description,created_at) VALUES (?,?,?,?,?)`,
		workspaceID, workspaceID, "active", nil, now); err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	if err := r.UpsertWorkspaceConfigTx(ctx, tx, workspaceID, seedCfg); err != nil {
		return fmt.Errorf("insert workspace config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureActor(ctx, tx, actorID, "", now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	if err := r.UpsertMembership(ctx, tx, domain.Membership{
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		Role:        "admin",
		JoinedAt:    now,
	}); err != nil {
		return fmt.Errorf("assign admin membership: %w", err)
	}
	return tx.Commit()
}
