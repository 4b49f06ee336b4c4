package git_apis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/kainlite/gitops-operator/internal/domain/manifests"
	"github.com/kainlite/gitops-operator/internal/infrastructure/logging"
	"github.com/kainlite/gitops-operator/internal/infrastructure/retry_config"
)

const shortRevisionLength = 7

// LiveGitClient talks to real git remotes over SSH. Every operation works in
// its own private storage (in-memory for reads, a temporary directory for
// writes) so concurrent pipelines never share a checkout.
type LiveGitClient struct {
	logger       logging.AppLogger
	retryOptions []retry.Option
}

func NewLiveGitClient() (*LiveGitClient, error) {
	logger, err := logging.NewDevProdLogger()

	if err != nil {
		return nil, err
	}

	return &LiveGitClient{
		logger:       logger,
		retryOptions: retry_config.RetryOptions,
	}, nil
}

func (g *LiveGitClient) LatestRevision(ctx context.Context, repositoryUrl string, branch string, tagType string, sshKey string) (string, error) {
	auth, err := buildAuth(repositoryUrl, sshKey)

	if err != nil {
		return "", err
	}

	g.logger.GetLogger().Info("Listing references for " + repositoryUrl)

	var references []*plumbing.Reference

	err = retry.Do(
		func() error {
			remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
				Name: "origin",
				URLs: []string{repositoryUrl},
			})

			var err error
			references, err = remote.ListContext(ctx, &git.ListOptions{Auth: auth})

			if isAuthError(err) {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrAuthFailed, err))
			}

			return err
		}, g.retryOptions...)

	if err != nil {
		return "", fmt.Errorf("failed to list references for %s: %w", repositoryUrl, err)
	}

	branchReference := plumbing.NewBranchReferenceName(branch)

	for _, reference := range references {
		if reference.Name() == branchReference {
			return renderRevision(reference.Hash().String(), tagType), nil
		}
	}

	return "", fmt.Errorf("%w: %s in %s", ErrRefNotFound, branch, repositoryUrl)
}

func (g *LiveGitClient) ApplyUpdate(ctx context.Context, request UpdateRequest) (string, error) {
	auth, err := buildAuth(request.RepositoryUrl, request.SshKey)

	if err != nil {
		return "", err
	}

	directory, err := os.MkdirTemp("", "gitops-manifest-")

	if err != nil {
		return "", err
	}

	defer os.RemoveAll(directory)

	repo, err := g.cloneManifestRepo(ctx, request, directory, auth)

	if err != nil {
		return "", err
	}

	manifestPath := filepath.Join(directory, request.DeploymentPath)
	content, err := os.ReadFile(manifestPath)

	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrPathNotFound, request.DeploymentPath)
	}

	if err != nil {
		return "", err
	}

	needsPatching, err := manifests.NeedsPatching(content, request.ImageName, request.NewRevision)

	if errors.Is(err, manifests.ErrImageNotFound) {
		return "", fmt.Errorf("%w: %s in %s", ErrImageNotFound, request.ImageName, request.DeploymentPath)
	}

	if err != nil {
		return "", err
	}

	if !needsPatching {
		return "", ErrAlreadyUpToDate
	}

	patched, err := manifests.Patch(content, request.ImageName, request.NewRevision)

	if errors.Is(err, manifests.ErrImageNotFound) {
		return "", fmt.Errorf("%w: %s in %s", ErrImageNotFound, request.ImageName, request.DeploymentPath)
	}

	if err != nil {
		return "", err
	}

	info, err := os.Stat(manifestPath)

	if err != nil {
		return "", err
	}

	if err := os.WriteFile(manifestPath, patched, info.Mode()); err != nil {
		return "", err
	}

	worktree, err := repo.Worktree()

	if err != nil {
		return "", err
	}

	if _, err := worktree.Add(filepath.ToSlash(request.DeploymentPath)); err != nil {
		return "", err
	}

	message := fmt.Sprintf("chore(refs): gitops-operator updating %s to %s", request.ImageName, request.NewRevision)
	signature := createSignature()

	commit, err := worktree.Commit(message, &git.CommitOptions{
		Author:    signature,
		Committer: signature,
	})

	if err != nil {
		return "", err
	}

	g.logger.GetLogger().Info("Created commit " + commit.String() + " in " + request.RepositoryUrl)

	if err := g.push(ctx, repo, request.Branch, auth); err != nil {
		return "", err
	}

	return commit.String(), nil
}

func (g *LiveGitClient) cloneManifestRepo(ctx context.Context, request UpdateRequest, directory string, auth transport.AuthMethod) (*git.Repository, error) {
	var repo *git.Repository

	err := retry.Do(
		func() error {
			// A failed attempt can leave a partial clone behind, so each
			// attempt starts from an empty directory.
			if err := os.RemoveAll(directory); err != nil {
				return retry.Unrecoverable(err)
			}

			if err := os.MkdirAll(directory, 0o700); err != nil {
				return retry.Unrecoverable(err)
			}

			var err error
			repo, err = git.PlainCloneContext(ctx, directory, false, &git.CloneOptions{
				URL:           request.RepositoryUrl,
				ReferenceName: plumbing.NewBranchReferenceName(request.Branch),
				SingleBranch:  true,
				Auth:          auth,
			})

			if isAuthError(err) {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrAuthFailed, err))
			}

			if isMissingBranchError(err) {
				return retry.Unrecoverable(fmt.Errorf("%w: %s in %s", ErrRefNotFound, request.Branch, request.RepositoryUrl))
			}

			return err
		}, g.retryOptions...)

	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", request.RepositoryUrl, err)
	}

	return repo, nil
}

func (g *LiveGitClient) push(ctx context.Context, repo *git.Repository, branch string, auth transport.AuthMethod) error {
	refSpec := gitconfig.RefSpec("refs/heads/" + branch + ":refs/heads/" + branch)

	err := retry.Do(
		func() error {
			err := repo.PushContext(ctx, &git.PushOptions{
				RemoteName: "origin",
				RefSpecs:   []gitconfig.RefSpec{refSpec},
				Auth:       auth,
			})

			if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
				return nil
			}

			if isNonFastForwardError(err) {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrPushRejected, err))
			}

			if isAuthError(err) {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrAuthFailed, err))
			}

			return err
		}, g.retryOptions...)

	if err != nil {
		return fmt.Errorf("failed to push to branch %s: %w", branch, err)
	}

	return nil
}

// createSignature builds the commit author the same way for every commit, so
// manifest history stays attributable to the operator.
func createSignature() *object.Signature {
	name := os.Getenv("DEFAULT_FROM_NAME")

	if name == "" {
		name = "GitOps Operator"
	}

	email := os.Getenv("DEFAULT_FROM_EMAIL")

	if email == "" {
		email = "gitops-operator@localhost"
	}

	return &object.Signature{
		Name:  name,
		Email: email,
		When:  time.Now(),
	}
}

func renderRevision(revision string, tagType string) string {
	if tagType == "short" && len(revision) > shortRevisionLength {
		return revision[:shortRevisionLength]
	}

	return revision
}

// buildAuth prepares SSH public key auth for ssh remotes. Host keys are
// verified against the known_hosts files, and an unknown host fails closed:
// a non-interactive service must never accept a host it cannot verify.
func buildAuth(repositoryUrl string, sshKey string) (transport.AuthMethod, error) {
	if sshKey == "" || !isSshUrl(repositoryUrl) {
		return nil, nil
	}

	keys, err := gitssh.NewPublicKeys("git", []byte(sshKey), "")

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	callback, err := gitssh.NewKnownHostsCallback()

	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts for host verification: %w", err)
	}

	keys.HostKeyCallback = callback

	return keys, nil
}

func isSshUrl(repositoryUrl string) bool {
	if strings.HasPrefix(repositoryUrl, "ssh://") {
		return true
	}

	// scp-like syntax, e.g. git@github.com:org/repo.git
	return !strings.Contains(repositoryUrl, "://") && strings.Contains(repositoryUrl, "@")
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "knownhosts: key is unknown")
}

func isMissingBranchError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		strings.Contains(err.Error(), "couldn't find remote ref") ||
		strings.Contains(err.Error(), "reference not found")
}

func isNonFastForwardError(err error) bool {
	if err == nil {
		return false
	}

	return strings.Contains(err.Error(), "non-fast-forward")
}
