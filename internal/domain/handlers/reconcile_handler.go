package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/kainlite/gitops-operator/internal/domain/models"
	"github.com/kainlite/gitops-operator/internal/domain/repolocks"
	"github.com/kainlite/gitops-operator/internal/infrastructure/git_apis"
	"github.com/kainlite/gitops-operator/internal/infrastructure/kubernetes_apis"
	"github.com/kainlite/gitops-operator/internal/infrastructure/logging"
	"github.com/kainlite/gitops-operator/internal/infrastructure/notification_apis"
	"github.com/kainlite/gitops-operator/internal/infrastructure/registry_apis"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
)

// maxConcurrentPipelines bounds how many deployment pipelines run at once.
// Commits into the same manifest repository are still serialized by the lock
// manager.
const maxConcurrentPipelines = 4

// ReconcileHandler fans one trigger out across every annotated deployment and
// aggregates the per-deployment outcomes.
type ReconcileHandler struct {
	logger        logging.AppLogger
	lister        kubernetes_apis.DeploymentLister
	secrets       kubernetes_apis.SecretProvider
	git           git_apis.GitClient
	registry      registry_apis.ImageCheckerFactory
	notifications notification_apis.NotificationSender
	locks         *repolocks.Manager

	// strictRegistryCheck turns registry verification into a hard gate: a
	// missing image or a failed check fails the deployment's pass instead of
	// proceeding with a warning.
	strictRegistryCheck bool
}

func NewReconcileHandler() (*ReconcileHandler, error) {
	logger, err := logging.NewDevProdLogger()

	if err != nil {
		return nil, err
	}

	kubernetesClient, err := kubernetes_apis.NewLiveKubernetesClient()

	if err != nil {
		return nil, err
	}

	gitClient, err := git_apis.NewLiveGitClient()

	if err != nil {
		return nil, err
	}

	return &ReconcileHandler{
		logger:              logger,
		lister:              kubernetesClient,
		secrets:             kubernetesClient,
		git:                 gitClient,
		registry:            &registry_apis.LiveImageCheckerFactory{},
		notifications:       notification_apis.NewLiveNotificationSender(),
		locks:               repolocks.NewManager(),
		strictRegistryCheck: os.Getenv("STRICT_REGISTRY_CHECK") == "true",
	}, nil
}

// Reconcile runs the pipeline for every discovered deployment. Pipelines run
// concurrently, results come back in discovery order, and no deployment's
// failure aborts the others.
func (h *ReconcileHandler) Reconcile(ctx context.Context) []models.ReconcileResult {
	deployments, err := h.lister.ListDeployments(ctx)

	if err != nil {
		h.logger.GetLogger().Error("Failed to list deployments: " + err.Error())
		return []models.ReconcileResult{models.NewFailure("", "", "failed to list deployments: "+err.Error())}
	}

	results := make([]models.ReconcileResult, len(deployments))

	group := errgroup.Group{}
	group.SetLimit(maxConcurrentPipelines)

	for index := range deployments {
		index := index
		deployment := deployments[index]

		group.Go(func() error {
			results[index] = h.processDeployment(ctx, &deployment)
			return nil
		})
	}

	// The goroutines never return errors, every outcome lands in the results
	// slice.
	_ = group.Wait()

	return results
}

// Debug returns the decoded configuration and raw annotations for every
// eligible deployment without performing any mutation.
func (h *ReconcileHandler) Debug(ctx context.Context) ([]models.Entry, error) {
	deployments, err := h.lister.ListDeployments(ctx)

	if err != nil {
		return nil, err
	}

	entries := lo.FilterMap(deployments, func(deployment appsv1.Deployment, index int) (models.Entry, bool) {
		entry, skip := models.NewEntry(&deployment)

		if skip != nil {
			return models.Entry{}, false
		}

		return *entry, true
	})

	return entries, nil
}

func (h *ReconcileHandler) processDeployment(ctx context.Context, deployment *appsv1.Deployment) models.ReconcileResult {
	name := deployment.GetName()
	namespace := deployment.GetNamespace()

	entry, skip := models.NewEntry(deployment)

	if skip != nil {
		if skip.Managed {
			h.logger.GetLogger().Error("Invalid configuration for " + namespace + "/" + name + ": " + skip.Detail)
			return models.NewFailure(name, namespace, skip.Detail)
		}

		h.logger.GetLogger().Debug("Skipping " + namespace + "/" + name + ": " + skip.Detail)
		return models.NewSuccess(name, namespace, "skipped: "+skip.Detail)
	}

	return h.processEntry(ctx, entry)
}

func (h *ReconcileHandler) processEntry(ctx context.Context, entry *models.Entry) models.ReconcileResult {
	h.logger.GetLogger().Info("Processing " + entry.String())
	entry.Config.State = models.StateChecking

	sshKey, err := h.secrets.GetSshKey(ctx, entry.Config.SshKeyName, entry.Config.SshKeyNamespace)

	if err != nil {
		return h.fail(entry, "failed to get the SSH key: "+err.Error())
	}

	latest, err := h.git.LatestRevision(ctx, entry.Config.AppRepository, entry.Config.ObserveBranch, entry.Config.TagType, sshKey)

	if err != nil {
		return h.fail(entry, "failed to resolve the latest revision: "+err.Error())
	}

	if entry.Version == latest {
		entry.Config.State = models.StateUpToDate
		h.logger.GetLogger().Info("Deployment " + entry.String() + " is up to date")
		return h.succeed(entry, fmt.Sprintf("deployment %s is up to date at %s", entry.String(), latest))
	}

	var warnings *multierror.Error

	if entry.Config.RegistryUrl != "" {
		exists, err := h.checkRegistry(ctx, entry, latest)

		if err != nil {
			if h.strictRegistryCheck {
				return h.fail(entry, fmt.Sprintf("failed to verify image %s:%s in the registry: %s",
					entry.Config.ImageName, latest, err.Error()))
			}

			warnings = multierror.Append(warnings,
				fmt.Errorf("could not verify image %s:%s in the registry: %w", entry.Config.ImageName, latest, err))
		} else if !exists {
			if h.strictRegistryCheck {
				return h.fail(entry, fmt.Sprintf("image %s:%s is not present in the registry",
					entry.Config.ImageName, latest))
			}

			warnings = multierror.Append(warnings,
				fmt.Errorf("image %s:%s is not yet present in the registry", entry.Config.ImageName, latest))
		}
	}

	entry.Config.State = models.StateUpdating

	release := h.locks.Acquire(entry.Config.ManifestRepository)
	commit, err := h.git.ApplyUpdate(ctx, git_apis.UpdateRequest{
		RepositoryUrl:  entry.Config.ManifestRepository,
		Branch:         entry.Config.ObserveBranch,
		DeploymentPath: entry.Config.DeploymentPath,
		ImageName:      entry.Config.ImageName,
		NewRevision:    latest,
		SshKey:         sshKey,
	})
	release()

	if errors.Is(err, git_apis.ErrAlreadyUpToDate) {
		entry.Config.State = models.StateUpToDate
		return h.succeed(entry, fmt.Sprintf("deployment %s manifest already references %s", entry.String(), latest))
	}

	if err != nil {
		h.notify(ctx, entry, fmt.Sprintf("Failed to patch deployment %s to version %s: %s", entry.String(), latest, err.Error()))
		return h.fail(entry, "failed to update the manifest repository: "+err.Error())
	}

	message := fmt.Sprintf("deployment %s patched successfully to version %s (commit %s)", entry.String(), latest, commit)

	entry.Config.State = models.StateNotifying

	if err := h.notify(ctx, entry, "Deployment "+entry.String()+" has been patched successfully to version "+latest); err != nil {
		warnings = multierror.Append(warnings, fmt.Errorf("failed to send the notification: %w", err))
	}

	if warnings.ErrorOrNil() != nil {
		message = message + "; warnings: " + warnings.Error()
	}

	return h.succeed(entry, message)
}

// checkRegistry resolves the registry credentials and asks the registry
// whether the candidate image tag is already retrievable.
func (h *ReconcileHandler) checkRegistry(ctx context.Context, entry *models.Entry, tag string) (bool, error) {
	auth, err := h.secrets.GetRegistryAuth(ctx, entry.Config.RegistrySecretName, entry.Config.RegistrySecretNamespace, entry.Config.RegistryUrl)

	if err != nil {
		return false, fmt.Errorf("failed to resolve registry credentials: %w", err)
	}

	checker, err := h.registry.Create(entry.Config.RegistryUrl, auth)

	if err != nil {
		return false, err
	}

	return checker.CheckImage(ctx, entry.Config.ImageName, tag)
}

// notify is best-effort: the returned error is only ever surfaced as a
// warning in the result message.
func (h *ReconcileHandler) notify(ctx context.Context, entry *models.Entry, message string) error {
	if entry.Config.NotificationsSecretName == "" {
		return nil
	}

	endpoint, err := h.secrets.GetNotificationEndpoint(ctx, entry.Config.NotificationsSecretName, entry.Config.NotificationsSecretNamespace)

	if err != nil {
		h.logger.GetLogger().Warn("Failed to get the notifications secret for " + entry.String() + ": " + err.Error())
		return err
	}

	if endpoint == "" {
		return nil
	}

	if err := h.notifications.Send(ctx, message, endpoint); err != nil {
		h.logger.GetLogger().Warn("Failed to send a notification for " + entry.String() + ": " + err.Error())
		return err
	}

	return nil
}

func (h *ReconcileHandler) succeed(entry *models.Entry, message string) models.ReconcileResult {
	entry.Config.State = models.StateDone
	return models.NewSuccess(entry.Name, entry.Namespace, message)
}

func (h *ReconcileHandler) fail(entry *models.Entry, message string) models.ReconcileResult {
	entry.Config.State = models.StateFailed
	h.logger.GetLogger().Error("Reconciliation failed for " + entry.String() + ": " + message)
	return models.NewFailure(entry.Name, entry.Namespace, message)
}
