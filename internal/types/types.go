package types

import (
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// MediaRef is an opaque reference to an externally stored blob. The server
// never touches the blob itself; it records the reference and hands it back
// when the caller needs to issue a compensating delete.
type MediaRef struct {
	Id  string `json:"id"`
	Url string `json:"url"`
}

type Message struct {
	Id          int        `json:"-"`
	ExternalId  string     `json:"id"`
	SenderId    int        `json:"sender_id"`
	RecipientId int        `json:"recipient_id,omitempty"`
	GroupId     string     `json:"group_id,omitempty"`
	Body        string     `json:"body,omitempty"`
	Media       []MediaRef `json:"media,omitempty"`
	Deleted     bool       `json:"deleted,omitempty"`
	Read        bool       `json:"read,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type GroupMember struct {
	UserId   int       `json:"user_id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type Group struct {
	Id          int           `json:"-"`
	ExternalId  string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Icon        string        `json:"icon,omitempty"`
	OwnerId     int           `json:"owner_id"`
	Members     []GroupMember `json:"members,omitempty"`
	CreatedAt   time.Time     `json:"created_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at,omitempty"`
}
