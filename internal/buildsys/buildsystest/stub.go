// Package buildsystest provides an in-memory buildsys.Client for handler
// unit tests, grounded on the teacher's lode.StubClient pattern.
package buildsystest

import (
	"context"
	"fmt"
	"sync"

	"github.com/redhatci/kaijs/internal/buildsys"
)

// StubClient returns canned BuildInfo replies keyed by build id.
type StubClient struct {
	mu       sync.Mutex
	replies  map[int]buildsys.BuildInfo
	errs     map[int]error
	callLog  []int
}

// NewStubClient creates an empty stub.
func NewStubClient() *StubClient {
	return &StubClient{replies: make(map[int]buildsys.BuildInfo), errs: make(map[int]error)}
}

// SetReply configures the reply for a given build id.
func (s *StubClient) SetReply(buildID int, info buildsys.BuildInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[buildID] = info
}

// SetError configures GetBuild to fail for a given build id.
func (s *StubClient) SetError(buildID int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[buildID] = err
}

// GetBuild returns the configured reply, or an error if none is set.
func (s *StubClient) GetBuild(ctx context.Context, buildID int) (buildsys.BuildInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callLog = append(s.callLog, buildID)

	if err, ok := s.errs[buildID]; ok {
		return buildsys.BuildInfo{}, err
	}
	info, ok := s.replies[buildID]
	if !ok {
		return buildsys.BuildInfo{}, fmt.Errorf("buildsystest: no reply configured for build %d", buildID)
	}
	return info, nil
}

// Calls returns every build id GetBuild was called with, in order.
func (s *StubClient) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.callLog...)
}
