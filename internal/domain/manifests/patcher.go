// Package manifests rewrites the image tag inside a deployment manifest. The
// patch is textual and scoped to the one image line so every other byte of the
// document, including comments and formatting, survives the update.
package manifests

import (
	"errors"
	"strings"

	"github.com/kainlite/gitops-operator/internal/domain/models"
	appsv1 "k8s.io/api/apps/v1"
	"sigs.k8s.io/yaml"
)

var (
	// ErrImageNotFound means no container image in the document matched the
	// configured image name.
	ErrImageNotFound = errors.New("no image reference matching the configured image name was found")

	// ErrNotADeployment means the document did not parse as a Deployment.
	ErrNotADeployment = errors.New("the manifest could not be parsed as a Deployment")
)

// NeedsPatching reports whether the manifest still references an older tag for
// imageName. It parses the document as a Deployment so a malformed manifest is
// reported before any mutation is attempted.
func NeedsPatching(content []byte, imageName string, newRevision string) (bool, error) {
	var deployment appsv1.Deployment

	if err := yaml.Unmarshal(content, &deployment); err != nil {
		return false, errors.Join(ErrNotADeployment, err)
	}

	for _, container := range deployment.Spec.Template.Spec.Containers {
		repository, tag := models.SplitImageReference(container.Image)

		if repository == imageName {
			return tag != newRevision, nil
		}
	}

	return false, ErrImageNotFound
}

// Patch rewrites the tag of every image line whose repository part equals
// imageName to newRevision, leaving the rest of the document untouched.
func Patch(content []byte, imageName string, newRevision string) ([]byte, error) {
	lines := strings.Split(string(content), "\n")
	patched := false

	for i, line := range lines {
		replaced, ok := patchImageLine(line, imageName, newRevision)

		if ok {
			lines[i] = replaced
			patched = true
		}
	}

	if !patched {
		return nil, ErrImageNotFound
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// patchImageLine rewrites a single "image:" line when its value names the
// target image. Indentation, list markers, quoting and trailing comments are
// preserved.
func patchImageLine(line string, imageName string, newRevision string) (string, bool) {
	idx := strings.Index(line, "image:")

	if idx < 0 {
		return "", false
	}

	// The key must be at the start of the line, allowing for indentation and
	// a YAML list marker. Anything else ("livenessImage:", comments) is not
	// an image key.
	if strings.TrimLeft(line[:idx], " \t-") != "" {
		return "", false
	}

	rest := line[idx+len("image:"):]
	value := strings.TrimSpace(rest)

	if value == "" {
		return "", false
	}

	// Drop a trailing comment from the value before inspecting it.
	comment := ""

	if hash := strings.Index(value, " #"); hash >= 0 {
		comment = value[hash:]
		value = strings.TrimSpace(value[:hash])
	}

	quote := ""

	if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
		quote = string(value[0])
		value = value[1 : len(value)-1]
	}

	repository, _ := models.SplitImageReference(value)

	if repository != imageName {
		return "", false
	}

	leading := rest[:len(rest)-len(strings.TrimLeft(rest, " \t"))]

	return line[:idx] + "image:" + leading + quote + imageName + ":" + newRevision + quote + comment, true
}
