// Package app resolves the active artifact and its config for CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aegis/internal/config"
	"aegis/internal/domain"
	"aegis/internal/repo"
)

// ResolveArtifactAndConfig picks the active artifact and ensures an artifact
// and config row exist, seeding defaults when missing. The override wins;
// otherwise a lone artifact in the workspace resolves implicitly.
func ResolveArtifactAndConfig(ctx context.Context, artifactOverride string, r repo.Repo) (string, *config.Config, error) {
	artifactID := artifactOverride
	if artifactID == "" {
		a, err := r.SingleArtifact(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("artifact not specified; use --artifact")
		}
		artifactID = a.ID
	}
	seedCfg := config.Default(artifactID)

	if _, err := r.GetArtifact(ctx, artifactID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := r.InsertArtifact(ctx, domain.Artifact{
			ID:         artifactID,
			DomainTags: []string{},
			Status:     domain.ArtifactActive,
			CreatedAt:  now,
		}); err != nil {
			return "", nil, fmt.Errorf("create artifact: %w", err)
		}
		if err := r.UpsertArtifactConfig(ctx, artifactID, *seedCfg, now); err != nil {
			return "", nil, fmt.Errorf("seed artifact config: %w", err)
		}
	}
	cfg, err := r.GetArtifactConfig(ctx, artifactID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := r.UpsertArtifactConfig(ctx, artifactID, *seedCfg, now); err != nil {
			return "", nil, fmt.Errorf("seed artifact config: %w", err)
		}
		cfg = *seedCfg
	}
	cfg.Artifact.ID = artifactID
	return artifactID, &cfg, nil
}
