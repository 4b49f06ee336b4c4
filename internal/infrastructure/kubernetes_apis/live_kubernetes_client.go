package kubernetes_apis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/avast/retry-go/v4"
	"github.com/kainlite/gitops-operator/internal/infrastructure/logging"
	"github.com/kainlite/gitops-operator/internal/infrastructure/retry_config"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	sshPrivateKeyField    = "ssh-privatekey"
	webhookUrlField       = "webhook-url"
	dockerConfigJsonField = ".dockerconfigjson"
)

// LiveKubernetesClient lists deployments and resolves secrets against a live
// cluster API. Secret reads are cached for a short period to keep repeated
// reconciliation passes from hammering the API server.
type LiveKubernetesClient struct {
	clientset    kubernetes.Interface
	logger       logging.AppLogger
	bigCache     *bigcache.BigCache
	retryOptions []retry.Option
}

func NewLiveKubernetesClient() (*LiveKubernetesClient, error) {
	config, err := getRestConfig()

	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)

	if err != nil {
		return nil, err
	}

	return NewLiveKubernetesClientForClientset(clientset)
}

// NewLiveKubernetesClientForClientset accepts any clientset, which lets tests
// inject the client-go fake.
func NewLiveKubernetesClientForClientset(clientset kubernetes.Interface) (*LiveKubernetesClient, error) {
	logger, err := logging.NewDevProdLogger()

	if err != nil {
		return nil, err
	}

	bCache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(5*time.Minute))

	if err != nil {
		return nil, err
	}

	return &LiveKubernetesClient{
		clientset:    clientset,
		logger:       logger,
		bigCache:     bCache,
		retryOptions: retry_config.RetryOptions,
	}, nil
}

func getRestConfig() (*rest.Config, error) {
	config, err := rest.InClusterConfig()

	if err == nil {
		return config, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")

	if kubeconfig == "" {
		kubeconfig = clientcmd.RecommendedHomeFile
	}

	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

func (k *LiveKubernetesClient) ListDeployments(ctx context.Context) ([]appsv1.Deployment, error) {
	var deployments *appsv1.DeploymentList

	err := retry.Do(
		func() error {
			var err error
			deployments, err = k.clientset.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
			return err
		}, k.retryOptions...)

	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	return deployments.Items, nil
}

func (k *LiveKubernetesClient) GetSshKey(ctx context.Context, name string, namespace string) (string, error) {
	key, err := k.getSecretField(ctx, name, namespace, sshPrivateKeyField,
		"consider recreating the secret with kubectl create secret generic "+name+
			" --from-file=ssh-privatekey=/path/to/key")

	if err != nil {
		return "", err
	}

	return string(key), nil
}

func (k *LiveKubernetesClient) GetNotificationEndpoint(ctx context.Context, name string, namespace string) (string, error) {
	if name == "" {
		return "", nil
	}

	endpoint, err := k.getSecretField(ctx, name, namespace, webhookUrlField,
		"consider recreating the secret with kubectl create secret generic "+name+
			" -n "+namespace+" --from-literal=webhook-url=https://hooks.example.com/...")

	if err != nil {
		return "", err
	}

	return string(endpoint), nil
}

// dockerConfig is the standard registry-credential secret layout.
type dockerConfig struct {
	Auths map[string]dockerConfigAuth `json:"auths"`
}

type dockerConfigAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Auth     string `json:"auth"`
}

func (k *LiveKubernetesClient) GetRegistryAuth(ctx context.Context, name string, namespace string, registryUrl string) (*RegistryAuth, error) {
	raw, err := k.getSecretField(ctx, name, namespace, dockerConfigJsonField,
		"the registry secret must be of type kubernetes.io/dockerconfigjson")

	if err != nil {
		return nil, err
	}

	config := dockerConfig{}

	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse the dockerconfigjson data: %w", err)
	}

	entry, found := lookupRegistry(config.Auths, registryUrl)

	if !found {
		return nil, errors.New("no credentials found for registry " + registryUrl)
	}

	if entry.Username != "" || entry.Password != "" {
		return &RegistryAuth{Username: entry.Username, Password: entry.Password}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(entry.Auth)

	if err != nil {
		return nil, fmt.Errorf("failed to decode the auth field for registry %s: %w", registryUrl, err)
	}

	username, password, found := strings.Cut(string(decoded), ":")

	if !found {
		return nil, errors.New("the auth field for registry " + registryUrl + " is not a username:password pair")
	}

	return &RegistryAuth{Username: username, Password: password}, nil
}

// lookupRegistry tolerates the common variations of registry keys found in
// dockerconfigjson secrets: with or without scheme, with or without a
// trailing slash.
func lookupRegistry(auths map[string]dockerConfigAuth, registryUrl string) (dockerConfigAuth, bool) {
	candidates := []string{registryUrl}

	if parsed, err := url.Parse(registryUrl); err == nil && parsed.Host != "" {
		candidates = append(candidates, parsed.Host)
	}

	for _, candidate := range candidates {
		for key, entry := range auths {
			if strings.TrimSuffix(key, "/") == strings.TrimSuffix(candidate, "/") {
				return entry, true
			}
		}
	}

	return dockerConfigAuth{}, false
}

func (k *LiveKubernetesClient) getSecretField(ctx context.Context, name string, namespace string, field string, hint string) ([]byte, error) {
	cacheKey := "secret/" + namespace + "/" + name + "/" + field

	if cached, err := k.bigCache.Get(cacheKey); err == nil {
		return cached, nil
	}

	var value []byte

	err := retry.Do(
		func() error {
			secret, err := k.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})

			if err != nil {
				return err
			}

			data, exists := secret.Data[field]

			if !exists {
				return retry.Unrecoverable(errors.New("failed to read field " + field + " in secret " +
					namespace + "/" + name + ", " + hint))
			}

			value = data
			return nil
		}, k.retryOptions...)

	if err != nil {
		return nil, err
	}

	if err := k.bigCache.Set(cacheKey, value); err != nil {
		k.logger.GetLogger().Warn("Failed to cache secret " + namespace + "/" + name + ": " + err.Error())
	}

	return value, nil
}
