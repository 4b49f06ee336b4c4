package kubernetes_apis

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
)

// DeploymentLister returns the candidate deployments for a reconciliation
// pass, in the order the cluster API lists them.
type DeploymentLister interface {
	ListDeployments(ctx context.Context) ([]appsv1.Deployment, error)
}

// RegistryAuth is the credential pair extracted from a dockerconfigjson
// secret for one registry.
type RegistryAuth struct {
	Username string
	Password string
}

// SecretProvider resolves the secrets referenced by deployment annotations.
type SecretProvider interface {
	// GetSshKey returns the private key stored under the ssh-privatekey data
	// field of the named secret.
	GetSshKey(ctx context.Context, name string, namespace string) (string, error)

	// GetNotificationEndpoint returns the webhook URL stored under the
	// webhook-url data field of the named secret.
	GetNotificationEndpoint(ctx context.Context, name string, namespace string) (string, error)

	// GetRegistryAuth extracts the credentials for registryUrl from the
	// .dockerconfigjson data field of the named secret.
	GetRegistryAuth(ctx context.Context, name string, namespace string, registryUrl string) (*RegistryAuth, error)
}
