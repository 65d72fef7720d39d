package types

import (
	"fmt"
	"time"
)

// Channel variants. The variant drives membership resolution, creation
// authorization and required-field validation.
type ChannelVariant string

const (
	VariantBroadcast ChannelVariant = "broadcast"
	VariantRole      ChannelVariant = "role"
	VariantTeam      ChannelVariant = "team"
	VariantGroup     ChannelVariant = "group"
	VariantDirect    ChannelVariant = "direct"
)

func (v ChannelVariant) Valid() bool {
	switch v {
	case VariantBroadcast, VariantRole, VariantTeam, VariantGroup, VariantDirect:
		return true
	}
	return false
}

// Channel lifecycle states.
const (
	ChannelActive  = "active"
	ChannelPending = "pending"
)

// Message kinds.
const (
	MessageText  = "text"
	MessageFile  = "file"
	MessageImage = "image"
)

// Channel request states.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

type Channel struct {
	ID             uint64         `gorm:"primaryKey" json:"id"`
	Name           *string        `gorm:"size:128" json:"name"` // null for direct channels
	Variant        ChannelVariant `gorm:"size:16;index;not null" json:"variant"`
	LifecycleState string         `gorm:"size:16;not null;default:active" json:"lifecycleState"`
	TargetRoleID   *uint64        `json:"targetRoleId,omitempty"`
	TargetTeamID   *uint64        `json:"targetTeamId,omitempty"`
	// PairKey is set for direct channels only: "min:max" of the two user ids.
	// The unique index closes the duplicate-direct race at the storage layer.
	PairKey   *string   `gorm:"size:64;uniqueIndex" json:"-"`
	CreatedBy uint64    `gorm:"not null" json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// DirectPairKey builds the canonical unordered pair key for a direct channel.
func DirectPairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Membership snapshot rows. Sole source of access for group/direct channels;
// audit-trail fallback for the name-matched variants.
type ChannelMember struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	ChannelID uint64    `gorm:"uniqueIndex:idx_channel_user;not null" json:"channelId"`
	UserID    uint64    `gorm:"uniqueIndex:idx_channel_user;not null" json:"userId"`
	AddedAt   time.Time `json:"addedAt"`
}

type Message struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	ChannelID uint64    `gorm:"index;not null" json:"channelId"`
	SenderID  uint64    `gorm:"not null" json:"senderId"`
	Kind      string    `gorm:"size:16;not null;default:text" json:"kind"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Attachment struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	MessageID   uint64    `gorm:"index;not null" json:"messageId"`
	FileName    string    `gorm:"size:255;not null" json:"fileName"`
	StoragePath string    `gorm:"size:512;not null" json:"-"`
	MimeType    string    `gorm:"size:128" json:"mimeType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  uint64    `gorm:"not null" json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type ChannelRequest struct {
	ID           uint64         `gorm:"primaryKey" json:"id"`
	RequestedBy  uint64         `gorm:"index;not null" json:"requestedBy"`
	ChannelName  string         `gorm:"size:128;not null" json:"channelName"`
	Variant      ChannelVariant `gorm:"size:16;not null" json:"variant"`
	TargetRoleID *uint64        `json:"targetRoleId,omitempty"`
	TargetTeamID *uint64        `json:"targetTeamId,omitempty"`
	State        string         `gorm:"size:16;index;not null;default:pending" json:"state"`
	ReviewedBy   *uint64        `json:"reviewedBy,omitempty"`
	ReviewNotes  *string        `gorm:"size:1024" json:"reviewNotes,omitempty"`
	ReviewedAt   *time.Time     `json:"reviewedAt,omitempty"`
	ChannelID    *uint64        `json:"channelId,omitempty"` // set on approval
	CreatedAt    time.Time      `json:"createdAt"`
}

// Requested initial members for a pending group channel.
type ChannelRequestMember struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	RequestID uint64 `gorm:"uniqueIndex:idx_request_user;not null" json:"requestId"`
	UserID    uint64 `gorm:"uniqueIndex:idx_request_user;not null" json:"userId"`
}

// Read-models for tables owned by the platform's admin module. The messaging
// core only ever reads these; tests seed them directly.
type User struct {
	ID        uint64  `gorm:"primaryKey" json:"id"`
	FirstName string  `gorm:"size:64" json:"firstName"`
	LastName  string  `gorm:"size:64" json:"lastName"`
	Email     string  `gorm:"size:255;uniqueIndex" json:"email"`
	Active    bool    `gorm:"default:true" json:"active"`
	IsAdmin   bool    `gorm:"default:false" json:"isAdmin"`
	ManagerID *uint64 `gorm:"index" json:"managerId,omitempty"`
	RoleID    *uint64 `gorm:"index" json:"roleId,omitempty"`
	TeamID    *uint64 `gorm:"index" json:"teamId,omitempty"`
}

type Role struct {
	ID   uint64 `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;uniqueIndex;not null" json:"name"`
}

type Team struct {
	ID   uint64 `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;uniqueIndex;not null" json:"name"`
}
