package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Resource names addressable in the cache.
const (
	ResourceAgentList   = "agent-list"
	ResourceAgentDetail = "agent-detail"
)

// Key addresses one cache entry: workspace, resource type, and a normalized
// hash of the query parameters. Two logically identical queries hash
// identically regardless of parameter declaration order.
type Key struct {
	WorkspaceID string
	Resource    string
	Params      map[string]string
}

// ListKey returns the key for a workspace's unfiltered agent list.
func ListKey(workspaceID string) Key {
	return Key{WorkspaceID: workspaceID, Resource: ResourceAgentList}
}

// DetailKey returns the key for a single agent's detail record.
func DetailKey(workspaceID, gptID string) Key {
	return Key{
		WorkspaceID: workspaceID,
		Resource:    ResourceAgentDetail,
		Params:      map[string]string{"id": gptID},
	}
}

// ParamsHash returns a stable hex digest of the query parameters.
// Parameters are sorted by name before hashing.
func (k Key) ParamsHash() string {
	if len(k.Params) == 0 {
		return "full"
	}
	pairs := make([]string, 0, len(k.Params))
	for name, value := range k.Params {
		pairs = append(pairs, name+"="+value)
	}
	sort.Strings(pairs)
	sum := sha256.Sum256([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(sum[:])[:16]
}

// String returns the composite key used as the primary key on disk.
func (k Key) String() string {
	return k.WorkspaceID + "/" + k.Resource + "/" + k.ParamsHash()
}
