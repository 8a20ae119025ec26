package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hrline/internal/config"
	"hrline/internal/repo"
)

// ResolveOrgAndConfig picks the active org and ensures an org + config exist in DB,
// seeding defaults if missing. It prefers overrides, then single-org DB.
// A config file in the workspace takes precedence over the stored config.
func ResolveOrgAndConfig(ctx context.Context, workspace, orgOverride string, r repo.Repo) (string, *config.Config, error) {
	orgID := orgOverride
	if orgID == "" {
		if o, err := r.SingleOrg(ctx); err == nil {
			orgID = o.ID
		} else if fileCfg, ferr := config.LoadOptional(workspace); ferr == nil && fileCfg != nil && fileCfg.Org.ID != "" {
			orgID = fileCfg.Org.ID
		} else {
			return "", nil, fmt.Errorf("org not specified; use --org")
		}
	}
	seedCfg := config.Default(orgID)

	if _, err := r.GetOrg(ctx, orgID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createOrg(ctx, r, orgID, seedCfg); err != nil {
			return "", nil, err
		}
	}

	if fileCfg, err := config.LoadOptional(workspace); err != nil {
		return "", nil, err
	} else if fileCfg != nil {
		fileCfg.Org.ID = orgID
		return orgID, fileCfg, nil
	}

	cfg, err := r.GetOrgConfig(ctx, orgID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertOrgConfig(ctx, orgID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed org config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Org.ID = orgID
	return orgID, cfg, nil
}

// createOrg inserts a minimal org footprint using the seed config.
func createOrg(ctx context.Context, r repo.Repo, orgID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(orgID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	name := seedCfg.Org.Name
	if name == "" {
		name = orgID
	}
	if err := r.EnsureOrg(ctx, tx, orgID, name, now); err != nil {
		return fmt.Errorf("ensure org: %w", err)
	}
	if err := r.UpsertOrgConfigTx(ctx, tx, orgID, seedCfg); err != nil {
		return fmt.Errorf("insert org config: %w", err)
	}
	return tx.Commit()
}
