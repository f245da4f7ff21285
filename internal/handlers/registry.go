package handlers

import (
	"github.com/redhatci/kaijs/internal/buildsys"
	"github.com/redhatci/kaijs/internal/dispatch"
)

// NewDefaultRegistry wires every handler family named in spec §4.5 into a
// dispatch.Registry, in most-specific-first order: literal/narrow topic
// families are registered before the broader CI test-result patterns they
// could otherwise be shadowed by.
func NewDefaultRegistry(buildsysClient buildsys.Client, resolve IndexNameResolver) *dispatch.Registry {
	r := dispatch.NewRegistry()

	r.Register(`\.errata_automation\.brew-build\.run\.finished$`, NewErrataHandler(resolve))
	r.Register(`\.redhat-container-image\.test\.`, NewContainerImageHandler(resolve))
	r.Register(`\.productmd-compose\.(test|build)\.`, NewComposeHandler(resolve))
	r.Register(`pungi\.compose\.status\.change$`, NewComposeHandler(resolve))
	r.Register(`\.ci\.[^.]+\.redhat-module\.test\.`, NewMBSTestHandler(resolve))
	r.Register(`^org\.centos\.prod\.ci\.fedora-module\.test\.`, NewMBSTestHandler(resolve))
	r.Register(`^org\.(fedoraproject|centos)\.prod\.buildsys\.tag$`, NewBuildsysTagHandler(buildsysClient, resolve))
	r.Register(`\.brew\.build\.tag$`, NewBrewTagHandler(resolve))
	r.Register(`\.brew\.build\.complete$`, NewBrewBuildCompleteHandler(resolve))
	r.Register(`\.ci\.[^.]+\.brew-build\.test\.(complete|queued|running|error)$`, NewBrewBuildTestHandler(resolve))
	r.Register(`^org\.centos\.prod\.ci\.koji-build\.test\.`, NewBrewBuildTestHandler(resolve))

	return r
}
