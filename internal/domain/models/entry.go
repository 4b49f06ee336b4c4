package models

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	appsv1 "k8s.io/api/apps/v1"
)

// AnnotationPrefix namespaces every annotation this operator reads. The key
// set below is the wire contract between cluster operators and the service.
const AnnotationPrefix = "gitops.operator."

const (
	AnnotationEnabled                      = AnnotationPrefix + "enabled"
	AnnotationAppRepository                = AnnotationPrefix + "app_repository"
	AnnotationManifestRepository           = AnnotationPrefix + "manifest_repository"
	AnnotationImageName                    = AnnotationPrefix + "image_name"
	AnnotationDeploymentPath               = AnnotationPrefix + "deployment_path"
	AnnotationObserveBranch                = AnnotationPrefix + "observe_branch"
	AnnotationTagType                      = AnnotationPrefix + "tag_type"
	AnnotationSshKeyName                   = AnnotationPrefix + "ssh_key_name"
	AnnotationSshKeyNamespace              = AnnotationPrefix + "ssh_key_namespace"
	AnnotationNotificationsSecretName      = AnnotationPrefix + "notifications_secret_name"
	AnnotationNotificationsSecretNamespace = AnnotationPrefix + "notifications_secret_namespace"
	AnnotationRegistryUrl                  = AnnotationPrefix + "registry_secret_url"
	AnnotationRegistrySecretName           = AnnotationPrefix + "registry_secret_name"
	AnnotationRegistrySecretNamespace      = AnnotationPrefix + "registry_secret_namespace"
)

const (
	DefaultObserveBranch           = "master"
	DefaultTagType                 = "long"
	DefaultRegistrySecretName      = "regcred"
	DefaultRegistrySecretNamespace = "gitops-operator"
	DefaultNotificationsNamespace  = "gitops-operator"
)

// DeploymentConfig is the validated, strongly typed view of one deployment's
// annotations. It is rebuilt from the live annotations on every pass and never
// cached across passes.
type DeploymentConfig struct {
	Enabled                      bool           `json:"enabled"`
	Namespace                    string         `json:"namespace"`
	AppRepository                string         `json:"app_repository"`
	ManifestRepository           string         `json:"manifest_repository"`
	ImageName                    string         `json:"image_name"`
	DeploymentPath               string         `json:"deployment_path"`
	ObserveBranch                string         `json:"observe_branch"`
	TagType                      string         `json:"tag_type"`
	SshKeyName                   string         `json:"ssh_key_name"`
	SshKeyNamespace              string         `json:"ssh_key_namespace"`
	NotificationsSecretName      string         `json:"notifications_secret_name,omitempty"`
	NotificationsSecretNamespace string         `json:"notifications_secret_namespace,omitempty"`
	RegistryUrl                  string         `json:"registry_url,omitempty"`
	RegistrySecretName           string         `json:"registry_secret_name,omitempty"`
	RegistrySecretNamespace      string         `json:"registry_secret_namespace,omitempty"`
	State                        ReconcileState `json:"state"`
}

// Entry pairs a discovered deployment with its decoded configuration. The
// Container and Version fields are extracted from the first container's image
// reference. Version is the comparison baseline for reconciliation.
type Entry struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Container   string            `json:"container"`
	Version     string            `json:"version"`
	Annotations map[string]string `json:"annotations"`
	Config      DeploymentConfig  `json:"config"`
}

// SkipReason explains why a deployment did not yield a config. Managed is true
// when the deployment opted in but its annotations are unusable, which the
// orchestrator reports as a failure rather than an informational skip.
type SkipReason struct {
	Managed bool
	Detail  string
}

var requiredAnnotations = []string{
	AnnotationAppRepository,
	AnnotationManifestRepository,
	AnnotationImageName,
	AnnotationDeploymentPath,
	AnnotationSshKeyName,
	AnnotationSshKeyNamespace,
}

// NewEntry decodes a deployment's annotation map into an Entry. It is a pure
// function of the deployment object: no partial configs, no side effects.
func NewEntry(deployment *appsv1.Deployment) (*Entry, *SkipReason) {
	annotations := deployment.GetAnnotations()

	if annotations == nil {
		return nil, &SkipReason{Managed: false, Detail: "not managed by the gitops operator"}
	}

	enabled, exists := annotations[AnnotationEnabled]

	if !exists {
		return nil, &SkipReason{Managed: false, Detail: "not managed by the gitops operator"}
	}

	// Only the exact string "true" opts a deployment in. Anything else is
	// treated as disabled so an ambiguous value can never trigger an update.
	if enabled != "true" {
		return nil, &SkipReason{Managed: false, Detail: "disabled via " + AnnotationEnabled}
	}

	missing := lo.Filter(requiredAnnotations, func(key string, index int) bool {
		return strings.TrimSpace(annotations[key]) == ""
	})

	if len(missing) != 0 {
		return nil, &SkipReason{
			Managed: true,
			Detail:  "missing required annotations: " + strings.Join(missing, ", "),
		}
	}

	namespace := deployment.GetNamespace()

	if namespace == "" {
		return nil, &SkipReason{Managed: true, Detail: "deployment has no namespace"}
	}

	containers := deployment.Spec.Template.Spec.Containers

	if len(containers) == 0 || containers[0].Image == "" {
		return nil, &SkipReason{Managed: true, Detail: "deployment has no container image"}
	}

	container, version := SplitImageReference(containers[0].Image)

	tagType := annotations[AnnotationTagType]

	if tagType != "short" {
		tagType = DefaultTagType
	}

	observeBranch := annotations[AnnotationObserveBranch]

	if observeBranch == "" {
		observeBranch = DefaultObserveBranch
	}

	config := DeploymentConfig{
		Enabled:            true,
		Namespace:          namespace,
		AppRepository:      annotations[AnnotationAppRepository],
		ManifestRepository: annotations[AnnotationManifestRepository],
		ImageName:          annotations[AnnotationImageName],
		DeploymentPath:     annotations[AnnotationDeploymentPath],
		ObserveBranch:      observeBranch,
		TagType:            tagType,
		SshKeyName:         annotations[AnnotationSshKeyName],
		SshKeyNamespace:    annotations[AnnotationSshKeyNamespace],
		State:              StateQueued,
	}

	config.NotificationsSecretName = annotations[AnnotationNotificationsSecretName]
	config.NotificationsSecretNamespace = annotations[AnnotationNotificationsSecretNamespace]

	if config.NotificationsSecretName != "" && config.NotificationsSecretNamespace == "" {
		config.NotificationsSecretNamespace = DefaultNotificationsNamespace
	}

	config.RegistryUrl = annotations[AnnotationRegistryUrl]

	if config.RegistryUrl != "" {
		config.RegistrySecretName = annotations[AnnotationRegistrySecretName]
		config.RegistrySecretNamespace = annotations[AnnotationRegistrySecretNamespace]

		if config.RegistrySecretName == "" {
			config.RegistrySecretName = DefaultRegistrySecretName
		}

		if config.RegistrySecretNamespace == "" {
			config.RegistrySecretNamespace = DefaultRegistrySecretNamespace
		}
	}

	return &Entry{
		Name:        deployment.GetName(),
		Namespace:   namespace,
		Container:   container,
		Version:     version,
		Annotations: annotations,
		Config:      config,
	}, nil
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s/%s", e.Namespace, e.Name)
}

// SplitImageReference separates an image reference into repository and tag.
// The tag delimiter is the last colon that appears after the last slash, so
// registry ports ("registry:5000/app") are not mistaken for tags.
func SplitImageReference(image string) (string, string) {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")

	if colon > slash {
		return image[:colon], image[colon+1:]
	}

	return image, "latest"
}
