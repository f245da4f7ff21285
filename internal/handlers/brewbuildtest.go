package handlers

import (
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// BrewBuildTestHandler handles brew/koji build CI test-result topics
// (*.ci.*.brew-build.test.*, org.centos.prod.ci.koji-build.test.*), per
// spec §4.5's first dispatch family.
type BrewBuildTestHandler struct {
	resolve IndexNameResolver
}

// NewBrewBuildTestHandler builds a BrewBuildTestHandler using resolve for
// index naming.
func NewBrewBuildTestHandler(resolve IndexNameResolver) *BrewBuildTestHandler {
	return &BrewBuildTestHandler{resolve: resolve}
}

func (h *BrewBuildTestHandler) Name() string { return "brew-build-test" }

func (h *BrewBuildTestHandler) identity(topic string, body map[string]any) types.ArtifactIdentity {
	aid := getString(body, "artifact", "id")
	artifactType := types.ArtifactBrewBuild
	if contextForTopic(topic) == types.ContextCentOS {
		artifactType = types.ArtifactKojiBuildCS
	}
	return types.ArtifactIdentity{Type: artifactType, ID: aid}
}

func (h *BrewBuildTestHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	identity := h.identity(env.BrokerTopic, env.Body)
	if identity.ID == "" {
		return nil, &types.ValidationError{Topic: env.BrokerTopic, Detail: "missing artifact.id"}
	}
	if issuer := getString(env.Body, "artifact", "issuer"); issuer != "" {
		if err := validateIssuer(env.BrokerTopic, issuer); err != nil {
			return nil, err
		}
	}

	st, err := MakeState(env)
	if err != nil {
		return nil, err
	}
	payload := types.RPMBuildPayload{
		TaskID:    identity.ID,
		NVR:       getString(env.Body, "artifact", "nvr"),
		Issuer:    getString(env.Body, "artifact", "issuer"),
		Component: getString(env.Body, "artifact", "component"),
		Scratch:   getBool(env.Body, "artifact", "scratch"),
	}
	return &dispatch.DocResult{Identity: identity, Payload: payload, State: singleState(st)}, nil
}

func (h *BrewBuildTestHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	identity := h.identity(env.BrokerTopic, env.Body)
	if identity.ID == "" {
		return nil, &types.ValidationError{Topic: env.BrokerTopic, Detail: "missing artifact.id"}
	}
	parentSearchable := map[string]any{"type": identity.Type, "aid": identity.ID}
	childSearchable := map[string]any{"topic": env.BrokerTopic}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}
