package handlers

import (
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// ComposeHandler handles productmd-compose test and build-status topics,
// per spec §4.5's compose topic family.
type ComposeHandler struct {
	resolve IndexNameResolver
}

// NewComposeHandler builds a ComposeHandler using resolve for index naming.
func NewComposeHandler(resolve IndexNameResolver) *ComposeHandler {
	return &ComposeHandler{resolve: resolve}
}

func (h *ComposeHandler) Name() string { return "compose" }

func (h *ComposeHandler) identity(body map[string]any) types.ArtifactIdentity {
	aid := getString(body, "artifact", "id")
	if aid == "" {
		aid = getString(body, "compose_id")
	}
	return types.ArtifactIdentity{Type: types.ArtifactProductmdCompose, ID: aid}
}

func composePayloadFromBody(body map[string]any, aid string) types.ComposePayload {
	return types.ComposePayload{
		ComposeID:   aid,
		ComposeType: getString(body, "compose_type"),
		Release:     getString(body, "release"),
	}
}

func (h *ComposeHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	identity := h.identity(env.Body)
	if identity.ID == "" {
		return nil, &types.ValidationError{Topic: env.BrokerTopic, Detail: "missing compose id"}
	}

	st, err := MakeState(env)
	if err != nil {
		return nil, err
	}
	payload := composePayloadFromBody(env.Body, identity.ID)
	return &dispatch.DocResult{Identity: identity, Payload: payload, State: singleState(st)}, nil
}

func (h *ComposeHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	identity := h.identity(env.Body)
	if identity.ID == "" {
		return nil, &types.ValidationError{Topic: env.BrokerTopic, Detail: "missing compose id"}
	}
	parentSearchable := map[string]any{"type": identity.Type, "aid": identity.ID}
	childSearchable := map[string]any{"topic": env.BrokerTopic}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}
