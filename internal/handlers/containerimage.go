package handlers

import (
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// manifestListMediaType is the digest key read from info.extra.image.index.digests,
// per spec §4.6 ("Container image").
const manifestListMediaType = "application/vnd.docker.distribution.manifest.list.v2+json"

// ContainerImageHandler handles container-image test-result topics, keyed
// by the image's manifest-list digest.
type ContainerImageHandler struct {
	resolve IndexNameResolver
}

// NewContainerImageHandler builds a ContainerImageHandler using resolve for
// index naming.
func NewContainerImageHandler(resolve IndexNameResolver) *ContainerImageHandler {
	return &ContainerImageHandler{resolve: resolve}
}

func (h *ContainerImageHandler) Name() string { return "container-image" }

func (h *ContainerImageHandler) identity(body map[string]any) (types.ArtifactIdentity, error) {
	digests, ok := getNested(body, "info", "extra", "image", "index", "digests")
	if !ok {
		return types.ArtifactIdentity{}, &types.ValidationError{Detail: "missing info.extra.image.index.digests"}
	}
	digestMap, ok := digests.(map[string]any)
	if !ok {
		return types.ArtifactIdentity{}, &types.ValidationError{Detail: "info.extra.image.index.digests is not an object"}
	}
	digest, ok := digestMap[manifestListMediaType].(string)
	if !ok || digest == "" {
		return types.ArtifactIdentity{}, &types.ValidationError{Detail: "no manifest-list digest present"}
	}
	return types.ArtifactIdentity{Type: types.ArtifactRedHatContainer, ID: digest}, nil
}

func (h *ContainerImageHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	identity, err := h.identity(env.Body)
	if err != nil {
		return nil, err
	}

	st, err := MakeState(env)
	if err != nil {
		return nil, err
	}
	payload := containerPayloadFromBody(env.Body, identity.ID)
	payload.ContainerID = identity.ID
	return &dispatch.DocResult{Identity: identity, Payload: payload, State: singleState(st)}, nil
}

func (h *ContainerImageHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	identity, err := h.identity(env.Body)
	if err != nil {
		return nil, err
	}
	parentSearchable := map[string]any{"type": identity.Type, "aid": identity.ID}
	childSearchable := map[string]any{"topic": env.BrokerTopic}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}
