package handlers

import (
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// BrewTagHandler handles brew/koji tagging notifications, branching on
// whether the tagged build is a module build or a plain RPM build, per
// spec §4.6 ("Brew tag").
type BrewTagHandler struct {
	resolve IndexNameResolver
}

// NewBrewTagHandler builds a BrewTagHandler using resolve for index naming.
func NewBrewTagHandler(resolve IndexNameResolver) *BrewTagHandler {
	return &BrewTagHandler{resolve: resolve}
}

func (h *BrewTagHandler) Name() string { return "brew-tag" }

// isModuleBuild reports whether body.build.extra.typeinfo.module.module_build_service_id
// is present, the discriminator named in spec §4.6.
func isModuleBuild(body map[string]any) bool {
	_, ok := getNested(body, "build", "extra", "typeinfo", "module", "module_build_service_id")
	return ok
}

func (h *BrewTagHandler) identity(topic string, body map[string]any) (types.ArtifactIdentity, string, bool) {
	tagName := getString(body, "tag", "name")

	if isModuleBuild(body) {
		if !moduleGateTagPattern.MatchString(tagName) {
			return types.ArtifactIdentity{}, tagName, false
		}
		aid := getString(body, "build", "extra", "typeinfo", "module", "module_build_service_id")
		artifactType := types.ArtifactRedHatModule
		if contextForTopic(topic) == types.ContextFedora {
			artifactType = types.ArtifactFedoraModule
		}
		return types.ArtifactIdentity{Type: artifactType, ID: aid}, tagName, true
	}

	if !gateTagPattern.MatchString(tagName) {
		return types.ArtifactIdentity{}, tagName, false
	}
	aid := getString(body, "build", "task_id")
	if aid == "" {
		aid = getString(body, "build", "build_id")
	}
	artifactType := types.ArtifactBrewBuild
	switch contextForTopic(topic) {
	case types.ContextCentOS:
		artifactType = types.ArtifactKojiBuildCS
	case types.ContextFedora:
		artifactType = types.ArtifactKojiBuild
	}
	return types.ArtifactIdentity{Type: artifactType, ID: aid}, tagName, true
}

func (h *BrewTagHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	identity, tagName, ok := h.identity(env.BrokerTopic, env.Body)
	if !ok {
		return nil, &types.NoNeedToProcessError{Reason: "tag \"" + tagName + "\" is not a gate tag"}
	}

	st, err := MakeState(env)
	if err != nil {
		return nil, err
	}

	payload := rpmBuildPayloadFromBody(env.Body, identity.ID)

	return &dispatch.DocResult{Identity: identity, Payload: payload, State: singleState(st)}, nil
}

func (h *BrewTagHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	identity, tagName, ok := h.identity(env.BrokerTopic, env.Body)
	if !ok {
		return nil, &types.NoNeedToProcessError{Reason: "tag \"" + tagName + "\" is not a gate tag"}
	}

	parentSearchable := map[string]any{
		"type": identity.Type,
		"aid":  identity.ID,
	}
	childSearchable := map[string]any{
		"tag":   tagName,
		"topic": env.BrokerTopic,
	}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}

// rpmBuildPayloadFromBody extracts the RPMBuildPayload projection for the
// brew tag handler, reading the wire's nested build object.
func rpmBuildPayloadFromBody(body map[string]any, taskID string) types.RPMBuildPayload {
	name := getString(body, "build", "name")
	version := getString(body, "build", "version")
	release := getString(body, "build", "release")
	nvr := name + "-" + version + "-" + release

	return types.RPMBuildPayload{
		TaskID:    taskID,
		BuildID:   getString(body, "build", "build_id"),
		NVR:       nvr,
		Issuer:    getString(body, "build", "owner_name"),
		Component: name,
		Scratch:   getBool(body, "build", "extra", "scratch"),
	}
}
