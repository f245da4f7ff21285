package handlers

import (
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// MBSTestHandler handles module-build-service test-result topics (redhat
// and fedora modules), per spec §4.5's MBS test topic family.
type MBSTestHandler struct {
	resolve IndexNameResolver
}

// NewMBSTestHandler builds an MBSTestHandler using resolve for index naming.
func NewMBSTestHandler(resolve IndexNameResolver) *MBSTestHandler {
	return &MBSTestHandler{resolve: resolve}
}

func (h *MBSTestHandler) Name() string { return "mbs-test" }

func (h *MBSTestHandler) identity(topic string, body map[string]any) types.ArtifactIdentity {
	aid := getString(body, "artifact", "id")
	if aid == "" {
		aid = getString(body, "mbs_build", "id")
	}
	artifactType := types.ArtifactRedHatModule
	if contextForTopic(topic) == types.ContextFedora {
		artifactType = types.ArtifactFedoraModule
	}
	return types.ArtifactIdentity{Type: artifactType, ID: aid}
}

func mbsPayloadFromBody(body map[string]any) types.MBSBuildPayload {
	nsvc := getString(body, "artifact", "nsvc")
	if nsvc == "" {
		nsvc = getString(body, "mbs_build", "nsvc")
	}
	return types.MBSBuildPayload{
		MBSID:   getString(body, "artifact", "id"),
		NSVC:    nsvc,
		Name:    getString(body, "artifact", "component"),
		Stream:  getString(body, "mbs_build", "stream"),
		Version: getString(body, "mbs_build", "version"),
		Context: getString(body, "mbs_build", "context"),
		Issuer:  getString(body, "artifact", "issuer"),
	}
}

func (h *MBSTestHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	identity := h.identity(env.BrokerTopic, env.Body)
	if identity.ID == "" {
		return nil, &types.ValidationError{Topic: env.BrokerTopic, Detail: "missing module build id (artifact.id)"}
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
	return &dispatch.DocResult{Identity: identity, Payload: mbsPayloadFromBody(env.Body), State: singleState(st)}, nil
}

func (h *MBSTestHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	identity := h.identity(env.BrokerTopic, env.Body)
	if identity.ID == "" {
		return nil, &types.ValidationError{Topic: env.BrokerTopic, Detail: "missing module build id (artifact.id)"}
	}
	parentSearchable := map[string]any{"type": identity.Type, "aid": identity.ID}
	childSearchable := map[string]any{"topic": env.BrokerTopic}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}
