package types

import "time"

// ArtifactType is one of the closed set of artifact families this system
// understands. artifact_id is derived per family: task id for builds, MBS id
// for modules, compose id for composes, etc.
type ArtifactType string

const (
	ArtifactKojiBuild          ArtifactType = "koji-build"
	ArtifactKojiBuildCS        ArtifactType = "koji-build-cs"
	ArtifactCoprBuild          ArtifactType = "copr-build"
	ArtifactBrewBuild          ArtifactType = "brew-build"
	ArtifactRedHatModule       ArtifactType = "redhat-module"
	ArtifactFedoraModule       ArtifactType = "fedora-module"
	ArtifactProductmdCompose   ArtifactType = "productmd-compose"
	ArtifactRedHatContainer    ArtifactType = "redhat-container-image"
	ArtifactDistGitPR          ArtifactType = "dist-git-pr"
)

// validArtifactTypes is the closed set from spec §3.2.
var validArtifactTypes = map[ArtifactType]bool{
	ArtifactKojiBuild:        true,
	ArtifactKojiBuildCS:      true,
	ArtifactCoprBuild:        true,
	ArtifactBrewBuild:        true,
	ArtifactRedHatModule:     true,
	ArtifactFedoraModule:     true,
	ArtifactProductmdCompose: true,
	ArtifactRedHatContainer:  true,
	ArtifactDistGitPR:        true,
}

// IsValid reports whether t is one of the closed set of artifact types.
func (t ArtifactType) IsValid() bool {
	return validArtifactTypes[t]
}

// ArtifactIdentity is the (type, id) pair every payload maps to.
type ArtifactIdentity struct {
	Type ArtifactType
	ID   string
}

// ArtifactDocument is one document per (artifact_type, artifact_id) stored
// in the document database. Exactly one of the payload sub-objects
// (RPMBuild, MBSBuild, DistGitPR, ProductmdCompose) is populated.
type ArtifactDocument struct {
	ID string `bson:"_id,omitempty" json:"_id,omitempty"`

	// Version is a monotonically increasing integer starting at 1, bumped
	// by every successful update. Named _version on the wire.
	Version int64 `bson:"_version" json:"_version"`

	// AID is the artifact id; immutable after creation.
	AID string `bson:"aid" json:"aid"`
	// Type is the artifact type; immutable after creation.
	Type ArtifactType `bson:"type" json:"type"`

	RPMBuild         *RPMBuildPayload       `bson:"rpm_build,omitempty" json:"rpm_build,omitempty"`
	MBSBuild         *MBSBuildPayload       `bson:"mbs_build,omitempty" json:"mbs_build,omitempty"`
	DistGitPR        *DistGitPRPayload      `bson:"dist_git_pr,omitempty" json:"dist_git_pr,omitempty"`
	ProductmdCompose *ComposePayload        `bson:"productmd_compose,omitempty" json:"productmd_compose,omitempty"`

	States []ArtifactState `bson:"states" json:"states"`

	// ExpireAt is a TTL hint: set only for scratch builds (60 days) and
	// container images (182 days).
	ExpireAt *time.Time `bson:"expire_at,omitempty" json:"expire_at,omitempty"`

	Updated time.Time `bson:"_updated,omitempty" json:"_updated,omitempty"`
	Created time.Time `bson:"_created,omitempty" json:"_created,omitempty"`
}

// RPMBuildPayload is the searchable/payload projection for koji-build,
// koji-build-cs, copr-build, brew-build, and redhat-container-image artifacts.
type RPMBuildPayload struct {
	TaskID      string `bson:"task_id" json:"task_id"`
	BuildID     string `bson:"build_id,omitempty" json:"build_id,omitempty"`
	NVR         string `bson:"nvr" json:"nvr"`
	Issuer      string `bson:"issuer" json:"issuer"`
	Component   string `bson:"component" json:"component"`
	Scratch     bool   `bson:"scratch" json:"scratch"`
	ContainerID string `bson:"container_id,omitempty" json:"container_id,omitempty"`
}

// MBSBuildPayload is the searchable/payload projection for redhat-module and
// fedora-module artifacts, identified by NSVC (Name-Stream-Version-Context).
type MBSBuildPayload struct {
	MBSID   string `bson:"mbs_id" json:"mbs_id"`
	NSVC    string `bson:"nsvc" json:"nsvc"`
	Name    string `bson:"name" json:"name"`
	Stream  string `bson:"stream" json:"stream"`
	Version string `bson:"version" json:"version"`
	Context string `bson:"context" json:"context"`
	Issuer  string `bson:"issuer" json:"issuer"`
}

// DistGitPRPayload is the searchable/payload projection for dist-git-pr artifacts.
type DistGitPRPayload struct {
	PRID      string `bson:"pr_id" json:"pr_id"`
	Component string `bson:"component" json:"component"`
	CommitSHA string `bson:"commit_sha" json:"commit_sha"`
	Issuer    string `bson:"issuer,omitempty" json:"issuer,omitempty"`
}

// ComposePayload is the searchable/payload projection for productmd-compose artifacts.
type ComposePayload struct {
	ComposeID   string `bson:"compose_id" json:"compose_id"`
	ComposeType string `bson:"compose_type,omitempty" json:"compose_type,omitempty"`
	Release     string `bson:"release,omitempty" json:"release,omitempty"`
}
