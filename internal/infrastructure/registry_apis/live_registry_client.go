package registry_apis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/kainlite/gitops-operator/internal/infrastructure/kubernetes_apis"
	"github.com/kainlite/gitops-operator/internal/infrastructure/logging"
	"github.com/kainlite/gitops-operator/internal/infrastructure/retry_config"
)

// ErrRegistryAuthFailed means the registry rejected the provided credentials.
var ErrRegistryAuthFailed = errors.New("the registry rejected the provided credentials")

// LiveImageChecker queries a registry's manifest endpoint. Token negotiation
// against the registry's auth service is handled by the transport.
type LiveImageChecker struct {
	registry      string
	authenticator authn.Authenticator
	logger        logging.AppLogger
	retryOptions  []retry.Option
}

type LiveImageCheckerFactory struct{}

func (f *LiveImageCheckerFactory) Create(registryUrl string, auth *kubernetes_apis.RegistryAuth) (ImageChecker, error) {
	logger, err := logging.NewDevProdLogger()

	if err != nil {
		return nil, err
	}

	var authenticator authn.Authenticator = authn.Anonymous

	if auth != nil {
		authenticator = &authn.Basic{
			Username: auth.Username,
			Password: auth.Password,
		}
	}

	return &LiveImageChecker{
		registry:      registryHost(registryUrl),
		authenticator: authenticator,
		logger:        logger,
		retryOptions:  retry_config.RetryOptions,
	}, nil
}

func (c *LiveImageChecker) CheckImage(ctx context.Context, image string, tag string) (bool, error) {
	reference, err := name.ParseReference(c.registry + "/" + image + ":" + tag)

	if err != nil {
		return false, fmt.Errorf("failed to parse image reference: %w", err)
	}

	c.logger.GetLogger().Info("Checking registry for " + reference.String())

	var exists bool

	err = retry.Do(
		func() error {
			_, err := remote.Head(reference, remote.WithContext(ctx), remote.WithAuth(c.authenticator))

			if err == nil {
				exists = true
				return nil
			}

			var transportError *transport.Error

			if errors.As(err, &transportError) {
				if transportError.StatusCode == http.StatusNotFound {
					exists = false
					return nil
				}

				if transportError.StatusCode == http.StatusUnauthorized || transportError.StatusCode == http.StatusForbidden {
					return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrRegistryAuthFailed, err))
				}
			}

			return err
		}, c.retryOptions...)

	if err != nil {
		return false, err
	}

	return exists, nil
}

// registryHost strips the scheme so the URL annotation value can be used as
// an image reference prefix.
func registryHost(registryUrl string) string {
	host := strings.TrimPrefix(registryUrl, "https://")
	host = strings.TrimPrefix(host, "http://")

	return strings.TrimSuffix(host, "/")
}
