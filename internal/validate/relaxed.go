package validate

import (
	"fmt"

	"github.com/redhatci/kaijs/internal/types"
)

// ValidateRelaxed implements the version < 1.0 declarative-shape check of
// spec §4.4: required fields plus a discriminated artifact.type.
func ValidateRelaxed(body map[string]any) error {
	version, _ := body["version"].(string)

	artifact, ok := body["artifact"].(map[string]any)
	if !ok {
		return &types.ValidationError{Version: version, Detail: "missing 'artifact' object"}
	}

	artifactType, ok := artifact["type"].(string)
	if !ok || artifactType == "" {
		return &types.ValidationError{Version: version, Detail: "missing 'artifact.type'"}
	}

	if !types.ArtifactType(artifactType).IsValid() {
		return &types.ValidationError{Version: version, Detail: fmt.Sprintf("unknown artifact.type %q", artifactType)}
	}

	if _, ok := artifact["id"]; !ok {
		return &types.ValidationError{Version: version, Detail: "missing 'artifact.id'"}
	}

	return nil
}
