package handlers

import (
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// ErrataHandler handles errata-tool automation-finished notifications, an
// extra-light schema per spec §4.6; a null task_id is dropped by the
// validator before it reaches this handler.
type ErrataHandler struct {
	resolve IndexNameResolver
}

// NewErrataHandler builds an ErrataHandler using resolve for index naming.
func NewErrataHandler(resolve IndexNameResolver) *ErrataHandler {
	return &ErrataHandler{resolve: resolve}
}

func (h *ErrataHandler) Name() string { return "errata-automation-finished" }

func (h *ErrataHandler) identity(body map[string]any) (types.ArtifactIdentity, error) {
	taskID := getString(body, "task_id")
	if taskID == "" {
		return types.ArtifactIdentity{}, &types.ValidationError{Detail: "missing task_id"}
	}
	return types.ArtifactIdentity{Type: types.ArtifactBrewBuild, ID: taskID}, nil
}

func (h *ErrataHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	identity, err := h.identity(env.Body)
	if err != nil {
		return nil, err
	}

	st, err := MakeState(env)
	if err != nil {
		return nil, err
	}
	return &dispatch.DocResult{Identity: identity, Payload: nil, State: singleState(st)}, nil
}

func (h *ErrataHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	identity, err := h.identity(env.Body)
	if err != nil {
		return nil, err
	}
	parentSearchable := map[string]any{"type": identity.Type, "aid": identity.ID}
	childSearchable := map[string]any{"topic": env.BrokerTopic, "automation_status": getString(env.Body, "status")}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}
