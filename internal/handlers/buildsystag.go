package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redhatci/kaijs/internal/buildsys"
	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// BuildsysTagHandler handles koji/brew buildsys.tag notifications (fedora,
// centos-stream), enriching the bare tag event with a getBuild RPC call per
// spec §4.6 ("Buildsys tag").
type BuildsysTagHandler struct {
	client  buildsys.Client
	resolve IndexNameResolver

	// cached holds the last envelope's enrich() outcome. The loader loop
	// calls HandleDoc then HandleIndex back-to-back for the same envelope
	// with no concurrency (spec §5: one envelope in flight at a time), so a
	// single-slot cache keyed by spool id saves the second getBuild round
	// trip without needing per-envelope threading through the Handler
	// interface.
	cached *buildsysEnrichment
}

// buildsysEnrichment is one cached enrich() outcome.
type buildsysEnrichment struct {
	spoolID  string
	identity types.ArtifactIdentity
	payload  types.RPMBuildPayload
	err      error
}

// NewBuildsysTagHandler builds a BuildsysTagHandler calling client for
// enrichment and resolve for index naming.
func NewBuildsysTagHandler(client buildsys.Client, resolve IndexNameResolver) *BuildsysTagHandler {
	return &BuildsysTagHandler{client: client, resolve: resolve}
}

func (h *BuildsysTagHandler) Name() string { return "buildsys-tag" }

// enrich calls getBuild(build_id), then validates the reply against the
// koji_build_info special-purpose schema required by spec §4.6. The result
// is cached per envelope since HandleDoc and HandleIndex both call it.
func (h *BuildsysTagHandler) enrich(ctx context.Context, env *types.SpoolMessage) (types.ArtifactIdentity, types.RPMBuildPayload, error) {
	if h.cached != nil && h.cached.spoolID == env.SpoolID {
		return h.cached.identity, h.cached.payload, h.cached.err
	}
	identity, payload, err := h.enrichUncached(ctx, env)
	h.cached = &buildsysEnrichment{spoolID: env.SpoolID, identity: identity, payload: payload, err: err}
	return identity, payload, err
}

func (h *BuildsysTagHandler) enrichUncached(ctx context.Context, env *types.SpoolMessage) (types.ArtifactIdentity, types.RPMBuildPayload, error) {
	buildIDFloat, ok := env.Body["build_id"].(float64)
	if !ok {
		if i, ok2 := env.Body["build_id"].(int); ok2 {
			buildIDFloat = float64(i)
		} else {
			return types.ArtifactIdentity{}, types.RPMBuildPayload{}, &types.ValidationError{
				Topic: env.BrokerTopic, Detail: "body.build_id missing or not numeric",
			}
		}
	}
	buildID := int(buildIDFloat)

	info, err := h.client.GetBuild(ctx, buildID)
	if err != nil {
		return types.ArtifactIdentity{}, types.RPMBuildPayload{}, fmt.Errorf("handlers: enrich buildsys tag: %w", err)
	}
	if err := validateKojiBuildInfo(info); err != nil {
		return types.ArtifactIdentity{}, types.RPMBuildPayload{}, err
	}

	identity := types.ArtifactIdentity{
		Type: buildsysArtifactType(env.BrokerTopic),
		ID:   strconv.Itoa(info.TaskID),
	}

	payload := types.RPMBuildPayload{
		TaskID:    strconv.Itoa(info.TaskID),
		BuildID:   strconv.Itoa(buildID),
		NVR:       info.NVR,
		Issuer:    getString(env.Body, "owner"),
		Component: getString(env.Body, "name"),
		Scratch:   false,
	}
	return identity, payload, nil
}

func buildsysArtifactType(topic string) types.ArtifactType {
	if contextForTopic(topic) == types.ContextCentOS {
		return types.ArtifactKojiBuildCS
	}
	return types.ArtifactKojiBuild
}

// validateKojiBuildInfo is the koji_build_info special-purpose schema named
// in spec §4.4: a usable reply must carry a task id and an NVR.
func validateKojiBuildInfo(info buildsys.BuildInfo) error {
	if info.TaskID == 0 || info.NVR == "" {
		return &types.NoValidationSchemaError{Detail: "getBuild reply missing task_id or nvr (koji_build_info)"}
	}
	return nil
}

func (h *BuildsysTagHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	identity, payload, err := h.enrich(context.Background(), env)
	if err != nil {
		return nil, err
	}
	st, err := MakeState(env)
	if err != nil {
		return nil, err
	}
	return &dispatch.DocResult{Identity: identity, Payload: payload, State: singleState(st)}, nil
}

func (h *BuildsysTagHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	identity, payload, err := h.enrich(context.Background(), env)
	if err != nil {
		return nil, err
	}
	parentSearchable := map[string]any{"type": identity.Type, "aid": identity.ID, "nvr": payload.NVR}
	childSearchable := map[string]any{"tag": getString(env.Body, "tag"), "topic": env.BrokerTopic}
	return buildIndexUpdates(h.resolve, env.BrokerTopic, identity, parentSearchable, childSearchable, env), nil
}
