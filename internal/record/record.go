// Package record defines the workspace GPT snapshot as returned by the
// Compliance API. Records are immutable once fetched; a new download
// produces new records, never an in-place mutation.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Permissions describes what a shared user may do with a GPT.
type Permissions struct {
	Object        string `json:"object,omitempty"`
	CanRead       bool   `json:"can_read"`
	CanViewConfig bool   `json:"can_view_config"`
	CanWrite      bool   `json:"can_write"`
}

// SharedUser is a user the GPT has been shared with.
type SharedUser struct {
	Object      string       `json:"object,omitempty"`
	ID          string       `json:"id"`
	Email       string       `json:"email,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// SharedUserList is the API's list wrapper for sharing recipients.
type SharedUserList struct {
	Object  string       `json:"object,omitempty"`
	Data    []SharedUser `json:"data"`
	LastID  string       `json:"last_id,omitempty"`
	HasMore bool         `json:"has_more,omitempty"`
}

// Sharing holds a GPT's sharing scope. Visibility is one of: invite-only,
// workspace-with-link, workspace, anyone-with-link, gpt-store.
type Sharing struct {
	Object     string          `json:"object,omitempty"`
	Visibility string          `json:"visibility,omitempty"`
	Recipients *SharedUserList `json:"recipients,omitempty"`
}

// File is a knowledge file attached to a GPT configuration.
type File struct {
	Object      string  `json:"object,omitempty"`
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	CreatedAt   float64 `json:"created_at,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
}

// FileList is the API's list wrapper for attached files.
type FileList struct {
	Object  string `json:"object,omitempty"`
	Data    []File `json:"data"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more,omitempty"`
}

// Tool is a capability declared on a GPT configuration. Custom actions
// carry the fields needed for API-integration discovery.
type Tool struct {
	Type                   string  `json:"type"`
	CreatedAt              float64 `json:"created_at,omitempty"`
	ActionDomain           string  `json:"action_domain,omitempty"`
	ActionOpenAPIRaw       string  `json:"action_openapi_raw,omitempty"`
	ActionPrivacyPolicyURL string  `json:"action_privacy_policy_url,omitempty"`
	AuthType               string  `json:"auth_type,omitempty"`
}

// IsCustomAction reports whether the tool is a user-defined API integration.
func (t Tool) IsCustomAction() bool {
	switch t.Type {
	case "custom-action", "custom_action", "action":
		return true
	}
	return false
}

// ToolList is the API's list wrapper for declared tools.
type ToolList struct {
	Object  string `json:"object,omitempty"`
	Data    []Tool `json:"data"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more,omitempty"`
}

// VersionAuthor identifies who authored a configuration version.
type VersionAuthor struct {
	Object string `json:"object,omitempty"`
	ID     string `json:"id"`
	Email  string `json:"email,omitempty"`
}

// Config is one GPT configuration version.
type Config struct {
	Object               string         `json:"object,omitempty"`
	ID                   string         `json:"id"`
	Name                 string         `json:"name,omitempty"`
	Description          string         `json:"description,omitempty"`
	Categories           []string       `json:"categories,omitempty"`
	ConversationStarters []string       `json:"conversation_starters,omitempty"`
	CreatedAt            float64        `json:"created_at,omitempty"`
	Instructions         string         `json:"instructions,omitempty"`
	VersionAuthor        *VersionAuthor `json:"version_author,omitempty"`
	Files                *FileList      `json:"files,omitempty"`
	Tools                *ToolList      `json:"tools,omitempty"`
}

// ConfigList is the API's list wrapper for configuration versions.
type ConfigList struct {
	Object  string   `json:"object,omitempty"`
	Data    []Config `json:"data"`
	LastID  string   `json:"last_id,omitempty"`
	HasMore bool     `json:"has_more,omitempty"`
}

// GPT is one configurable agent's full compliance snapshot: identity,
// ownership, sharing scope, and the latest configuration with its attached
// files and declared tools.
type GPT struct {
	Object       string      `json:"object,omitempty"`
	ID           string      `json:"id"`
	CreatedAt    float64     `json:"created_at,omitempty"`
	OwnerID      string      `json:"owner_id,omitempty"`
	OwnerEmail   string      `json:"owner_email,omitempty"`
	BuilderName  string      `json:"builder_name,omitempty"`
	Sharing      *Sharing    `json:"sharing,omitempty"`
	LatestConfig *ConfigList `json:"latest_config,omitempty"`
}

// latest returns the newest configuration version, or nil.
func (g *GPT) latest() *Config {
	if g.LatestConfig == nil || len(g.LatestConfig.Data) == 0 {
		return nil
	}
	return &g.LatestConfig.Data[0]
}

// Name returns the GPT's name from its latest configuration.
func (g *GPT) Name() string {
	if c := g.latest(); c != nil {
		return c.Name
	}
	return ""
}

// Description returns the GPT's description from its latest configuration.
func (g *GPT) Description() string {
	if c := g.latest(); c != nil {
		return c.Description
	}
	return ""
}

// Instructions returns the GPT's system instructions from its latest configuration.
func (g *GPT) Instructions() string {
	if c := g.latest(); c != nil {
		return c.Instructions
	}
	return ""
}

// Files returns the attached files of the latest configuration.
func (g *GPT) Files() []File {
	if c := g.latest(); c != nil && c.Files != nil {
		return c.Files.Data
	}
	return nil
}

// Tools returns the declared tools of the latest configuration.
func (g *GPT) Tools() []Tool {
	if c := g.latest(); c != nil && c.Tools != nil {
		return c.Tools.Data
	}
	return nil
}

// HasCustomActions reports whether any declared tool is a custom action.
func (g *GPT) HasCustomActions() bool {
	for _, t := range g.Tools() {
		if t.IsCustomAction() {
			return true
		}
	}
	return false
}

// SharedUserCount returns the number of sharing recipients.
func (g *GPT) SharedUserCount() int {
	if g.Sharing == nil || g.Sharing.Recipients == nil {
		return 0
	}
	return len(g.Sharing.Recipients.Data)
}

// Visibility returns the sharing visibility, or empty if unset.
func (g *GPT) Visibility() string {
	if g.Sharing == nil {
		return ""
	}
	return g.Sharing.Visibility
}

// Created returns the creation timestamp as a time.Time, zero if unset.
func (g *GPT) Created() time.Time {
	if g.CreatedAt == 0 {
		return time.Time{}
	}
	return time.Unix(int64(g.CreatedAt), 0)
}

// Fingerprint returns a hex sha256 over the record's canonical JSON.
// Two fetches of an unchanged GPT produce the same fingerprint.
func (g *GPT) Fingerprint() string {
	data, err := json.Marshal(g)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
