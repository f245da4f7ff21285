package buildsystest

import (
	"context"
	"errors"
	"testing"

	"github.com/redhatci/kaijs/internal/buildsys"
)

func TestStubClientReturnsConfiguredReply(t *testing.T) {
	stub := NewStubClient()
	stub.SetReply(1728223, buildsys.BuildInfo{TaskID: 111, NVR: "gcompris-qt-1.1-1.fc33"})

	info, err := stub.GetBuild(context.Background(), 1728223)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.TaskID != 111 || info.NVR != "gcompris-qt-1.1-1.fc33" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if calls := stub.Calls(); len(calls) != 1 || calls[0] != 1728223 {
		t.Fatalf("unexpected call log: %v", calls)
	}
}

func TestStubClientReturnsConfiguredError(t *testing.T) {
	stub := NewStubClient()
	wantErr := errors.New("boom")
	stub.SetError(1, wantErr)

	_, err := stub.GetBuild(context.Background(), 1)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected configured error, got %v", err)
	}
}

func TestStubClientErrorsOnUnconfiguredBuild(t *testing.T) {
	stub := NewStubClient()
	if _, err := stub.GetBuild(context.Background(), 999); err == nil {
		t.Fatalf("expected error for unconfigured build id")
	}
}
