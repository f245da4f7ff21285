package handlers

import (
	"testing"

	"github.com/redhatci/kaijs/internal/buildsys/buildsystest"
)

func TestNewDefaultRegistryDispatchesEachFamily(t *testing.T) {
	reg := NewDefaultRegistry(buildsystest.NewStubClient(), fixedResolver)

	cases := []struct {
		topic string
		want  string
	}{
		{"VirtualTopic.eng.errata_automation.brew-build.run.finished", "errata-automation-finished"},
		{"org.fedoraproject.prod.ci.redhat-container-image.test.complete", "container-image"},
		{"org.fedoraproject.prod.productmd-compose.test.complete", "compose"},
		{"org.fedoraproject.prod.pungi.compose.status.change", "compose"},
		{"VirtualTopic.eng.ci.osci.redhat-module.test.complete", "mbs-test"},
		{"org.centos.prod.ci.fedora-module.test.complete", "mbs-test"},
		{"org.fedoraproject.prod.buildsys.tag", "buildsys-tag"},
		{"org.centos.prod.buildsys.tag", "buildsys-tag"},
		{"org.fedoraproject.prod.brew.build.tag", "brew-tag"},
		{"org.fedoraproject.prod.brew.build.complete", "brew-build-complete"},
		{"VirtualTopic.eng.ci.osci.brew-build.test.complete", "brew-build-test"},
		{"org.centos.prod.ci.koji-build.test.complete", "brew-build-test"},
	}

	for _, c := range cases {
		h, err := reg.Dispatch(c.topic)
		if err != nil {
			t.Fatalf("topic %q: unexpected dispatch error: %v", c.topic, err)
		}
		if h.Name() != c.want {
			t.Fatalf("topic %q: dispatched to %q, want %q", c.topic, h.Name(), c.want)
		}
	}
}

func TestNewDefaultRegistryNoMatch(t *testing.T) {
	reg := NewDefaultRegistry(buildsystest.NewStubClient(), fixedResolver)
	if _, err := reg.Dispatch("org.unknown.topic.here"); err == nil {
		t.Fatalf("expected NoAssociatedHandlerError for unrecognized topic")
	}
}
