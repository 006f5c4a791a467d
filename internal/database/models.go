package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id        int
	UserA     int
	UserB     int
	CreatedAt time.Time
}

type Media struct {
	RefId string
	Url   string
}

type Message struct {
	Id              int
	ExternalId      string
	ConversationId  int
	GroupId         int
	GroupExternalId string
	SenderId        int
	RecipientId     int
	Body            string
	Media           []Media
	DeletedFor      []int64
	Deleted         bool
	ReadBy          []int64
	CreatedAt       time.Time
}

type GroupMember struct {
	GroupId   int
	AccountId int
	Username  string
	Role      string
	JoinedAt  time.Time
}

type Group struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	Icon        string
	OwnerId     int
	Members     []GroupMember
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateMessageParams struct {
	ExternalId     string
	ConversationId int
	GroupId        int
	SenderId       int
	RecipientId    int
	Body           string
	Media          []Media
}

type CreateGroupParams struct {
	ExternalId  string
	Name        string
	Description string
	Icon        string
	OwnerId     int
	MemberIds   []int
}

type UpdateGroupMetaParams struct {
	Description *string
	Icon        *string
}
