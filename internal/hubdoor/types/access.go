package types

import "time"

// Method names how a door opening was authorized. They appear in the audit
// log and in metrics labels.
const (
	MethodChat      = "discord"
	MethodWallet    = "citizenwallet"
	MethodToken     = "token"
	MethodSignature = "signature"
	MethodShortcut  = "shortcut"
)

// AccessEvent is one entry of the door log.
type AccessEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	PrincipalID string    `json:"userid"`
	Agent       string    `json:"agent"`
}

// AuditEntry is one durable audit record as served by /audit.
type AuditEntry struct {
	ID          string            `json:"id"`
	At          time.Time         `json:"at"`
	Name        string            `json:"name"`
	Method      string            `json:"method"`
	PrincipalID string            `json:"userid"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Profile is the display snapshot of whoever last opened the door.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// OpenResponse is returned by the open endpoints on success.
type OpenResponse struct {
	OK         bool      `json:"ok"`
	Method     string    `json:"method"`
	Message    string    `json:"message"`
	EventURL   string    `json:"eventUrl,omitempty"`
	Visitors   []Profile `json:"visitors,omitempty"`
	ServerTime string    `json:"server_time"`
}

// DeniedResponse is returned by the open endpoints on rejection.
type DeniedResponse struct {
	OK     bool   `json:"ok"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	// ValidFrom/ValidUntil are set for signed links and include the grace
	// period, so the holder can see when the link would work.
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidUntil *time.Time `json:"validUntil,omitempty"`
}

// HomeResponse summarizes recent activity.
type HomeResponse struct {
	DoorLog []AccessEvent `json:"doorlog"`
	Today   []Profile     `json:"today"`
}
