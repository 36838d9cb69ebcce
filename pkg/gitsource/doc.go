// Package gitsource loads table documents from a git repository.
//
// A Repository keeps a local clone of the configured branch. A Poller pulls
// it on an interval and calls a reload function when a .yaml or .yml file
// changed. When the reload fails the clone is checked out at the last commit
// that loaded successfully and that commit is reloaded, so a broken push
// never replaces working tables.
//
//	repo, err := gitsource.NewRepository(cfg.Workspace.Git)
//	if err != nil {
//	    return err
//	}
//	if err := repo.Clone(ctx); err != nil {
//	    return err
//	}
//	poller := gitsource.NewPoller(repo, cfg.Workspace.Git.Poll.Interval, ws.LoadDir, logger)
//	if err := poller.Start(ctx); err != nil {
//	    return err
//	}
//	defer poller.Stop()
package gitsource
