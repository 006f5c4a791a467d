package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateBlock(blockerId, blockedId int) error {
	args := m.Called(blockerId, blockedId)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteBlock(blockerId, blockedId int) error {
	args := m.Called(blockerId, blockedId)
	return args.Error(0)
}
func (m *MockChatRepository) IsBlocked(userA, userB int) (bool, error) {
	args := m.Called(userA, userB)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) GetConversation(userA, userB int) (Conversation, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) GetOrCreateConversation(userA, userB int) (Conversation, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessageByExternalId(externalId string) (Message, error) {
	args := m.Called(externalId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetConversationMessages(conversationId, viewerId, limit int) ([]Message, error) {
	args := m.Called(conversationId, viewerId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) GetGroupMessages(groupId, viewerId, limit int) ([]Message, error) {
	args := m.Called(groupId, viewerId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessageRead(messageId, readerId int) error {
	args := m.Called(messageId, readerId)
	return args.Error(0)
}
func (m *MockChatRepository) MarkMessageDeletedFor(messageId, userId int) error {
	args := m.Called(messageId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) TombstoneMessage(messageId int) error {
	args := m.Called(messageId)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteMessageMedia(messageId int, refId string) (Media, error) {
	args := m.Called(messageId, refId)
	return args.Get(0).(Media), args.Error(1)
}
func (m *MockChatRepository) MarkConversationDeleted(conversationId, userId int) error {
	args := m.Called(conversationId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) MarkGroupChatDeleted(groupId, userId int) error {
	args := m.Called(groupId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) CreateGroup(params CreateGroupParams) (Group, error) {
	args := m.Called(params)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockChatRepository) GetGroupByExternalId(externalId string) (Group, error) {
	args := m.Called(externalId)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockChatRepository) AddGroupMembers(groupId, actorId int, userIds []int) error {
	args := m.Called(groupId, actorId, userIds)
	return args.Error(0)
}
func (m *MockChatRepository) RemoveGroupMembers(groupId, actorId int, userIds []int) (int, error) {
	args := m.Called(groupId, actorId, userIds)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) LeaveGroup(groupId, userId int) (int, error) {
	args := m.Called(groupId, userId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) PromoteMember(groupId, actorId, targetId int) error {
	args := m.Called(groupId, actorId, targetId)
	return args.Error(0)
}
func (m *MockChatRepository) DemoteAdmin(groupId, actorId, targetId, successorId int) error {
	args := m.Called(groupId, actorId, targetId, successorId)
	return args.Error(0)
}
func (m *MockChatRepository) UpdateGroupMeta(groupId, actorId int, params UpdateGroupMetaParams) error {
	args := m.Called(groupId, actorId, params)
	return args.Error(0)
}
func (m *MockChatRepository) ListContactIds(userId int) ([]int, error) {
	args := m.Called(userId)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockChatRepository) EnqueueOffline(recipientId, messageId int) error {
	args := m.Called(recipientId, messageId)
	return args.Error(0)
}
func (m *MockChatRepository) PendingOffline(recipientId int) ([]Message, error) {
	args := m.Called(recipientId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) DeleteOfflineEntries(recipientId int, messageIds []int) error {
	args := m.Called(recipientId, messageIds)
	return args.Error(0)
}
