package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"obraline/internal/config"
	"obraline/internal/repo"
)

// ResolveConfig picks the effective configuration for a workspace. A file
// config takes precedence; otherwise the config stored with the project is
// used, and finally defaults.
func ResolveConfig(ctx context.Context, workspace, projectID string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		if cfg.Project.ID == "" {
			cfg.Project.ID = projectID
		}
		return cfg, nil
	}
	if projectID != "" {
		cfg, err = r.GetProjectConfig(ctx, projectID)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	return config.Default(projectID), nil
}

// ResolveActor maps the --actor email to a user id. The CLI acts with the
// identity of a registered user.
func ResolveActor(ctx context.Context, r repo.Repo, actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", fmt.Errorf("actor not specified; use --actor with a registered email")
	}
	u, err := r.GetUserByEmail(ctx, actor)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("no user registered as %s; run obra user signup first", actor)
		}
		return "", err
	}
	return u.ID, nil
}
