package database

import "errors"

// Role mutation failures surfaced by the transactional group queries.
// Callers translate these into their own error taxonomy.
var (
	ErrNotAdmin  = errors.New("actor is not a group admin")
	ErrNotMember = errors.New("user is not a group member")
	ErrLastAdmin = errors.New("group cannot be left without an admin")
)

type ChatRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	CreateBlock(blockerId, blockedId int) error
	DeleteBlock(blockerId, blockedId int) error
	IsBlocked(userA, userB int) (bool, error)

	GetConversation(userA, userB int) (Conversation, error)
	GetOrCreateConversation(userA, userB int) (Conversation, error)

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageByExternalId(externalId string) (Message, error)
	GetConversationMessages(conversationId, viewerId, limit int) ([]Message, error)
	GetGroupMessages(groupId, viewerId, limit int) ([]Message, error)
	MarkMessageRead(messageId, readerId int) error
	MarkMessageDeletedFor(messageId, userId int) error
	TombstoneMessage(messageId int) error
	DeleteMessageMedia(messageId int, refId string) (Media, error)
	MarkConversationDeleted(conversationId, userId int) error
	MarkGroupChatDeleted(groupId, userId int) error

	CreateGroup(params CreateGroupParams) (Group, error)
	GetGroupByExternalId(externalId string) (Group, error)
	AddGroupMembers(groupId, actorId int, userIds []int) error
	RemoveGroupMembers(groupId, actorId int, userIds []int) (int, error)
	LeaveGroup(groupId, userId int) (int, error)
	PromoteMember(groupId, actorId, targetId int) error
	DemoteAdmin(groupId, actorId, targetId, successorId int) error
	UpdateGroupMeta(groupId, actorId int, params UpdateGroupMetaParams) error

	ListContactIds(userId int) ([]int, error)

	EnqueueOffline(recipientId, messageId int) error
	PendingOffline(recipientId int) ([]Message, error)
	DeleteOfflineEntries(recipientId int, messageIds []int) error
}
