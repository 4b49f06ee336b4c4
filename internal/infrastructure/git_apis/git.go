package git_apis

import (
	"context"
	"errors"
)

var (
	// ErrAuthFailed means the SSH key was rejected by the remote.
	ErrAuthFailed = errors.New("the git remote rejected the provided credentials")

	// ErrRefNotFound means the observed branch does not exist on the remote.
	ErrRefNotFound = errors.New("the branch was not found on the remote")

	// ErrPathNotFound means the deployment path does not exist in the
	// manifest repository.
	ErrPathNotFound = errors.New("the deployment path was not found in the manifest repository")

	// ErrImageNotFound means the manifest document has no image reference
	// matching the configured image name.
	ErrImageNotFound = errors.New("no matching image reference was found in the manifest")

	// ErrPushRejected means the remote refused a non-fast-forward push. The
	// next pass clones the updated remote state and retries from there.
	ErrPushRejected = errors.New("the push was rejected by the remote")

	// ErrAlreadyUpToDate means the manifest already references the target
	// revision, so there was nothing to commit.
	ErrAlreadyUpToDate = errors.New("the manifest already references the target revision")
)

// UpdateRequest describes one manifest repository mutation.
type UpdateRequest struct {
	RepositoryUrl  string
	Branch         string
	DeploymentPath string
	ImageName      string
	NewRevision    string
	SshKey         string
}

// GitClient is the versioned-file-update protocol: read the tip of the
// application repository, and patch-commit-push the manifest repository.
type GitClient interface {
	// LatestRevision resolves the tip of branch on the application
	// repository, rendered long (full SHA) or short per tagType.
	LatestRevision(ctx context.Context, repositoryUrl string, branch string, tagType string, sshKey string) (string, error)

	// ApplyUpdate clones the manifest repository into a private working
	// directory, rewrites the image tag at the deployment path, commits and
	// pushes. It returns the new commit id.
	ApplyUpdate(ctx context.Context, request UpdateRequest) (string, error)
}
