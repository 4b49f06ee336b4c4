package registry_apis

import (
	"context"

	"github.com/kainlite/gitops-operator/internal/infrastructure/kubernetes_apis"
)

// ImageChecker answers whether an exact image:tag is retrievable from a
// registry.
type ImageChecker interface {
	CheckImage(ctx context.Context, image string, tag string) (bool, error)
}

// ImageCheckerFactory builds a checker bound to one registry and one set of
// credentials. A nil auth produces an anonymous checker.
type ImageCheckerFactory interface {
	Create(registryUrl string, auth *kubernetes_apis.RegistryAuth) (ImageChecker, error)
}
