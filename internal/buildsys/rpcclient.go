package buildsys

import (
	"context"
	"fmt"

	"github.com/kolo/xmlrpc"

	"github.com/redhatci/kaijs/internal/retry"
)

// RPCClient is a Client backed by github.com/kolo/xmlrpc, with the retry
// policy named in spec §4.6: 5 attempts, factor 3, jittered, 1s to 60s.
type RPCClient struct {
	client *xmlrpc.Client
	policy retry.Policy
}

// NewRPCClient dials url (the koji/brew hub XML-RPC endpoint).
func NewRPCClient(url string) (*RPCClient, error) {
	client, err := xmlrpc.NewClient(url, nil)
	if err != nil {
		return nil, fmt.Errorf("buildsys: dial %s: %w", url, err)
	}
	return &RPCClient{client: client, policy: retry.Default}, nil
}

// GetBuild calls getBuild(buildID), retrying transient failures per the
// configured policy. A reply with no task_id is treated as a permanent
// rejection (a malformed/unknown build id will never succeed on retry).
func (c *RPCClient) GetBuild(ctx context.Context, buildID int) (BuildInfo, error) {
	var info BuildInfo
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var reply map[string]any
		if err := c.client.Call("getBuild", []any{buildID}, &reply); err != nil {
			return fmt.Errorf("buildsys: getBuild(%d): %w", buildID, err)
		}
		if reply == nil {
			return &retry.NonRetriable{Err: fmt.Errorf("buildsys: getBuild(%d): no such build", buildID)}
		}
		info = decodeBuildInfo(reply)
		if info.TaskID == 0 {
			return &retry.NonRetriable{Err: fmt.Errorf("buildsys: getBuild(%d): reply missing task_id", buildID)}
		}
		return nil
	})
	if err != nil {
		return BuildInfo{}, err
	}
	return info, nil
}

// Close releases the underlying XML-RPC client's connections.
func (c *RPCClient) Close() error {
	return c.client.Close()
}

func decodeBuildInfo(reply map[string]any) BuildInfo {
	var info BuildInfo
	if v, ok := reply["task_id"].(int); ok {
		info.TaskID = v
	} else if v, ok := reply["task_id"].(int64); ok {
		info.TaskID = int(v)
	}
	info.NVR, _ = reply["nvr"].(string)
	info.Name, _ = reply["name"].(string)
	info.Version, _ = reply["version"].(string)
	info.Release, _ = reply["release"].(string)
	info.Owner, _ = reply["owner_name"].(string)
	if extra, ok := reply["extra"].(map[string]any); ok {
		info.Extra = extra
	}
	return info
}
