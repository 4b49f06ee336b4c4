package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func minimalValidAnnotations() map[string]string {
	return map[string]string{
		AnnotationEnabled:            "true",
		AnnotationAppRepository:      "git@github.com:org/app.git",
		AnnotationManifestRepository: "git@github.com:org/manifests.git",
		AnnotationImageName:          "my-app",
		AnnotationDeploymentPath:     "deployments/app.yaml",
		AnnotationSshKeyName:         "ssh-key",
		AnnotationSshKeyNamespace:    "gitops-operator",
	}
}

func createTestDeployment(name string, namespace string, image string, annotations map[string]string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   namespace,
			Annotations: annotations,
		},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "test-container",
							Image: image,
						},
					},
				},
			},
		},
	}
}

func TestNewEntryMinimalAnnotations(t *testing.T) {
	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", minimalValidAnnotations())

	entry, skip := NewEntry(deployment)

	require.Nil(t, skip)
	assert.Equal(t, "test-app", entry.Name)
	assert.Equal(t, "default", entry.Namespace)
	assert.Equal(t, "my-container", entry.Container)
	assert.Equal(t, "1.0.0", entry.Version)
	assert.True(t, entry.Config.Enabled)
	assert.Equal(t, "git@github.com:org/app.git", entry.Config.AppRepository)
	assert.Equal(t, "deployments/app.yaml", entry.Config.DeploymentPath)
	assert.Equal(t, StateQueued, entry.Config.State)
}

func TestNewEntryDefaults(t *testing.T) {
	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", minimalValidAnnotations())

	entry, skip := NewEntry(deployment)

	require.Nil(t, skip)
	assert.Equal(t, "master", entry.Config.ObserveBranch)
	assert.Equal(t, "long", entry.Config.TagType)
	assert.Empty(t, entry.Config.RegistryUrl)
	assert.Empty(t, entry.Config.RegistrySecretName)
}

func TestNewEntryNoAnnotations(t *testing.T) {
	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", nil)

	entry, skip := NewEntry(deployment)

	assert.Nil(t, entry)
	require.NotNil(t, skip)
	assert.False(t, skip.Managed)
}

func TestNewEntryDisabled(t *testing.T) {
	annotations := minimalValidAnnotations()
	annotations[AnnotationEnabled] = "false"

	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

	entry, skip := NewEntry(deployment)

	assert.Nil(t, entry)
	require.NotNil(t, skip)
	assert.False(t, skip.Managed)
	assert.Contains(t, skip.Detail, "disabled")
}

// Anything that is not exactly "true" must behave as disabled.
func TestNewEntryAmbiguousEnabledValues(t *testing.T) {
	for _, value := range []string{"True", "TRUE", "yes", "1", ""} {
		annotations := minimalValidAnnotations()
		annotations[AnnotationEnabled] = value

		deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

		entry, skip := NewEntry(deployment)

		assert.Nil(t, entry, "value %q must not enable the deployment", value)
		require.NotNil(t, skip)
		assert.False(t, skip.Managed)
	}
}

func TestNewEntryMissingRequiredKeys(t *testing.T) {
	required := []string{
		AnnotationAppRepository,
		AnnotationManifestRepository,
		AnnotationImageName,
		AnnotationDeploymentPath,
		AnnotationSshKeyName,
		AnnotationSshKeyNamespace,
	}

	for _, key := range required {
		annotations := minimalValidAnnotations()
		delete(annotations, key)

		deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

		entry, skip := NewEntry(deployment)

		assert.Nil(t, entry, "missing %s must never yield a config", key)
		require.NotNil(t, skip)
		assert.True(t, skip.Managed, "missing %s is a configuration error", key)
		assert.Contains(t, skip.Detail, key)
	}
}

func TestNewEntryEmptyRequiredValue(t *testing.T) {
	annotations := minimalValidAnnotations()
	annotations[AnnotationImageName] = "   "

	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

	entry, skip := NewEntry(deployment)

	assert.Nil(t, entry)
	require.NotNil(t, skip)
	assert.True(t, skip.Managed)
	assert.Contains(t, skip.Detail, AnnotationImageName)
}

func TestNewEntryTagTypeShort(t *testing.T) {
	annotations := minimalValidAnnotations()
	annotations[AnnotationTagType] = "short"

	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

	entry, skip := NewEntry(deployment)

	require.Nil(t, skip)
	assert.Equal(t, "short", entry.Config.TagType)
}

func TestNewEntryTagTypeUnrecognized(t *testing.T) {
	annotations := minimalValidAnnotations()
	annotations[AnnotationTagType] = "medium"

	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

	entry, skip := NewEntry(deployment)

	require.Nil(t, skip)
	assert.Equal(t, "long", entry.Config.TagType)
}

func TestNewEntryRegistryConfig(t *testing.T) {
	annotations := minimalValidAnnotations()
	annotations[AnnotationRegistryUrl] = "https://registry.example.com"
	annotations[AnnotationRegistrySecretName] = "custom-regcred"
	annotations[AnnotationRegistrySecretNamespace] = "custom-namespace"

	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

	entry, skip := NewEntry(deployment)

	require.Nil(t, skip)
	assert.Equal(t, "https://registry.example.com", entry.Config.RegistryUrl)
	assert.Equal(t, "custom-regcred", entry.Config.RegistrySecretName)
	assert.Equal(t, "custom-namespace", entry.Config.RegistrySecretNamespace)
}

func TestNewEntryRegistryDefaults(t *testing.T) {
	annotations := minimalValidAnnotations()
	annotations[AnnotationRegistryUrl] = "https://registry.example.com"

	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

	entry, skip := NewEntry(deployment)

	require.Nil(t, skip)
	assert.Equal(t, DefaultRegistrySecretName, entry.Config.RegistrySecretName)
	assert.Equal(t, DefaultRegistrySecretNamespace, entry.Config.RegistrySecretNamespace)
}

func TestNewEntryNotificationsNamespaceDefault(t *testing.T) {
	annotations := minimalValidAnnotations()
	annotations[AnnotationNotificationsSecretName] = "webhook-secret"

	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", annotations)

	entry, skip := NewEntry(deployment)

	require.Nil(t, skip)
	assert.Equal(t, "webhook-secret", entry.Config.NotificationsSecretName)
	assert.Equal(t, DefaultNotificationsNamespace, entry.Config.NotificationsSecretNamespace)
}

func TestNewEntryNoContainers(t *testing.T) {
	deployment := createTestDeployment("test-app", "default", "my-container:1.0.0", minimalValidAnnotations())
	deployment.Spec.Template.Spec.Containers = nil

	entry, skip := NewEntry(deployment)

	assert.Nil(t, entry)
	require.NotNil(t, skip)
	assert.True(t, skip.Managed)
}

func TestSplitImageReference(t *testing.T) {
	tests := []struct {
		image      string
		repository string
		tag        string
	}{
		{"nginx:1.25", "nginx", "1.25"},
		{"nginx", "nginx", "latest"},
		{"registry:5000/org/app:abc123", "registry:5000/org/app", "abc123"},
		{"registry:5000/org/app", "registry:5000/org/app", "latest"},
		{"ghcr.io/org/app:sha-deadbeef", "ghcr.io/org/app", "sha-deadbeef"},
	}

	for _, test := range tests {
		repository, tag := SplitImageReference(test.image)

		assert.Equal(t, test.repository, repository, test.image)
		assert.Equal(t, test.tag, tag, test.image)
	}
}
