package tracestore

import (
	git "github.com/go-git/go-git/v5"

	"hone/internal/logging"
	"hone/internal/types"
)

// GitInfo returns the HEAD commit hash and branch for the repository
// containing dir. A missing repository or unborn HEAD reports ok=false.
func GitInfo(dir string) (commit, branch string, ok bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", "", false
	}
	commit = head.Hash().String()
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return commit, branch, true
}

// Stamp fills a trace's commit and branch from the repository containing
// dir. Already-stamped traces and non-repo workspaces are left alone.
func Stamp(trace *types.ExecutionTrace, dir string) {
	if trace.Commit != "" {
		return
	}
	commit, branch, ok := GitInfo(dir)
	if !ok {
		return
	}
	trace.Commit = commit
	trace.Branch = branch
	logging.TracesDebug("stamped trace %s with %s@%s", trace.TraceID, branch, commit)
}
