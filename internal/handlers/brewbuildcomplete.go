package handlers

import (
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// BrewBuildCompleteHandler handles brew build-complete notifications,
// processing only OSBS container builds, per spec §4.6 ("Brew build
// complete").
type BrewBuildCompleteHandler struct {
	resolve IndexNameResolver
}

// NewBrewBuildCompleteHandler builds a BrewBuildCompleteHandler using
// resolve for index naming.
func NewBrewBuildCompleteHandler(resolve IndexNameResolver) *BrewBuildCompleteHandler {
	return &BrewBuildCompleteHandler{resolve: resolve}
}

func (h *BrewBuildCompleteHandler) Name() string { return "brew-build-complete" }

// isContainerBuild reports whether info.extra.osbs_build.kind == "container_build".
func isContainerBuild(body map[string]any) bool {
	kind := getString(body, "info", "extra", "osbs_build", "kind")
	return kind == "container_build"
}

func (h *BrewBuildCompleteHandler) identity(body map[string]any) types.ArtifactIdentity {
	aid := getString(body, "info", "build_id")
	if aid == "" {
		aid = getString(body, "info", "task_id")
	}
	return types.ArtifactIdentity{Type: types.ArtifactRedHatContainer, ID: aid}
}

func (h *BrewBuildCompleteHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	if !isContainerBuild(env.Body) {
		return nil, &types.NoNeedToProcessError{Reason: "build is not an osbs container_build"}
	}

	st, err := MakeState(env)
	if err != nil {
		return nil, err
	}

	identity := h.identity(env.Body)
	payload := containerPayloadFromBody(env.Body, identity.ID)

	return &dispatch.DocResult{Identity: identity, Payload: payload, State: singleState(st)}, nil
}

func (h *BrewBuildCompleteHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	if !isContainerBuild(env.Body) {
		return nil, &types.NoNeedToProcessError{Reason: "build is not an osbs container_build"}
	}

	identity := h.identity(env.Body)
	parentSearchable := map[string]any{"type": identity.Type, "aid": identity.ID}
	childSearchable := map[string]any{"topic": env.BrokerTopic}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}

// containerPayloadFromBody extracts the RPMBuildPayload projection for an
// OSBS container build completion, reading the wire's nested info object.
func containerPayloadFromBody(body map[string]any, buildID string) types.RPMBuildPayload {
	name := getString(body, "info", "name")
	version := getString(body, "info", "version")
	release := getString(body, "info", "release")

	return types.RPMBuildPayload{
		TaskID:      getString(body, "info", "task_id"),
		BuildID:     buildID,
		NVR:         name + "-" + version + "-" + release,
		Issuer:      getString(body, "info", "owner_name"),
		Component:   name,
		Scratch:     getBool(body, "info", "extra", "scratch"),
		ContainerID: getString(body, "info", "extra", "osbs_build", "id"),
	}
}
