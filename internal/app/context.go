package app

import (
	"context"
	"errors"
	"fmt"

	"taskboard/internal/config"
	"taskboard/internal/repo"
)

// ResolveBoardConfig picks the active board configuration: taskboard.yml in
// the workspace when present, else the copy stored in the database, else the
// defaults. The chosen config is written back so the server and the CLI
// agree on the worker list.
func ResolveBoardConfig(ctx context.Context, workspace, boardName string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		stored, err := r.GetBoardConfig(ctx)
		switch {
		case err == nil:
			cfg = stored
		case errors.Is(err, repo.ErrNotFound):
			if boardName == "" {
				boardName = "Taskboard"
			}
			cfg = config.Default(boardName)
		default:
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := r.UpsertBoardConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("store board config: %w", err)
	}
	return cfg, nil
}
