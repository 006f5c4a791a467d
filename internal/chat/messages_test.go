package chat

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nmorelli/go-chatserver/internal/database"
	"github.com/nmorelli/go-chatserver/internal/testutil"
	"github.com/nmorelli/go-chatserver/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMessageStore(t *testing.T, mockDb *database.MockChatRepository) *MessageStore {
	t.Helper()

	store := NewMessageStore(mockDb, testutil.TestLogger(t))
	store.generateId = func() (string, error) { return "extid", nil }
	return store
}

func TestCreateDirectMessage(t *testing.T) {
	t.Run("successful send", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetOrCreateConversation", 1, 2).Return(database.Conversation{Id: 5, UserA: 1, UserB: 2}, nil)
		mockDb.On("CreateMessage", database.CreateMessageParams{
			ExternalId:     "extid",
			ConversationId: 5,
			SenderId:       1,
			RecipientId:    2,
			Body:           "hello",
			Media:          []database.Media{},
		}).Return(database.Message{
			Id: 10, ExternalId: "extid", ConversationId: 5, SenderId: 1, RecipientId: 2, Body: "hello",
			CreatedAt: time.Now().UTC(),
		}, nil)

		store := newTestMessageStore(t, mockDb)

		msg, err := store.CreateDirectMessage(1, 2, "hello", nil)
		require.NoError(t, err)
		assert.Equal(t, "extid", msg.ExternalId)
		assert.Equal(t, 1, msg.SenderId)
		assert.Equal(t, 2, msg.RecipientId)
		assert.Equal(t, "hello", msg.Body)

		mockDb.AssertExpectations(t)
	})
	t.Run("media only is valid", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetOrCreateConversation", 1, 2).Return(database.Conversation{Id: 5}, nil)
		mockDb.On("CreateMessage", database.CreateMessageParams{
			ExternalId:     "extid",
			ConversationId: 5,
			SenderId:       1,
			RecipientId:    2,
			Media:          []database.Media{{RefId: "ref1", Url: "https://blobs/ref1"}},
		}).Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2,
			Media: []database.Media{{RefId: "ref1", Url: "https://blobs/ref1"}},
		}, nil)

		store := newTestMessageStore(t, mockDb)

		msg, err := store.CreateDirectMessage(1, 2, "", []types.MediaRef{{Id: "ref1", Url: "https://blobs/ref1"}})
		require.NoError(t, err)
		assert.Equal(t, []types.MediaRef{{Id: "ref1", Url: "https://blobs/ref1"}}, msg.Media)

		mockDb.AssertExpectations(t)
	})
	t.Run("empty body and media", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		store := newTestMessageStore(t, mockDb)

		_, err := store.CreateDirectMessage(1, 2, "", nil)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
		mockDb.AssertNotCalled(t, "CreateMessage")
	})
	t.Run("self send is rejected", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		store := newTestMessageStore(t, mockDb)

		_, err := store.CreateDirectMessage(1, 1, "hello", nil)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
		mockDb.AssertNotCalled(t, "GetOrCreateConversation")
	})
	t.Run("db error", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetOrCreateConversation", 1, 2).Return(database.Conversation{}, errors.New("db down"))

		store := newTestMessageStore(t, mockDb)

		_, err := store.CreateDirectMessage(1, 2, "hello", nil)
		assert.Error(t, err)
	})
}

func TestCreateGroupMessage(t *testing.T) {
	group := database.Group{
		Id:         7,
		ExternalId: "grp",
		Members: []database.GroupMember{
			{AccountId: 1, Role: types.RoleAdmin},
			{AccountId: 2, Role: types.RoleMember},
		},
	}

	t.Run("successful send", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetGroupByExternalId", "grp").Return(group, nil)
		mockDb.On("CreateMessage", database.CreateMessageParams{
			ExternalId: "extid",
			GroupId:    7,
			SenderId:   1,
			Body:       "hi all",
			Media:      []database.Media{},
		}).Return(database.Message{Id: 10, ExternalId: "extid", GroupId: 7, SenderId: 1, Body: "hi all"}, nil)

		store := newTestMessageStore(t, mockDb)

		msg, got, err := store.CreateGroupMessage(1, "grp", "hi all", nil)
		require.NoError(t, err)
		assert.Equal(t, "grp", msg.GroupId)
		assert.Equal(t, group.Members, got.Members)

		mockDb.AssertExpectations(t)
	})
	t.Run("sender not a member", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetGroupByExternalId", "grp").Return(group, nil)

		store := newTestMessageStore(t, mockDb)

		_, _, err := store.CreateGroupMessage(99, "grp", "hi all", nil)

		var authorizationErr *AuthorizationError
		assert.ErrorAs(t, err, &authorizationErr)
		mockDb.AssertNotCalled(t, "CreateMessage")
	})
	t.Run("unknown group", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetGroupByExternalId", "nope").Return(database.Group{}, sql.ErrNoRows)

		store := newTestMessageStore(t, mockDb)

		_, _, err := store.CreateGroupMessage(1, "nope", "hi all", nil)

		var notFoundErr *NotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
	})
	t.Run("empty body and media", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetGroupByExternalId", "grp").Return(group, nil)

		store := newTestMessageStore(t, mockDb)

		_, _, err := store.CreateGroupMessage(1, "grp", "", nil)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestMarkRead(t *testing.T) {
	t.Run("successful read", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2, Body: "hello",
		}, nil)
		mockDb.On("MarkMessageRead", 10, 2).Return(nil)

		store := newTestMessageStore(t, mockDb)

		msg, err := store.MarkRead("extid", 2)
		require.NoError(t, err)
		assert.True(t, msg.Read)

		mockDb.AssertExpectations(t)
	})
	t.Run("group member reads", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", GroupId: 7, GroupExternalId: "grp", SenderId: 1, Body: "hi all",
		}, nil)
		mockDb.On("GetGroupByExternalId", "grp").Return(database.Group{
			Id:         7,
			ExternalId: "grp",
			Members: []database.GroupMember{
				{AccountId: 1, Role: types.RoleAdmin},
				{AccountId: 2, Role: types.RoleMember},
			},
		}, nil)
		mockDb.On("MarkMessageRead", 10, 2).Return(nil)

		store := newTestMessageStore(t, mockDb)

		msg, err := store.MarkRead("extid", 2)
		require.NoError(t, err)
		assert.True(t, msg.Read)

		mockDb.AssertExpectations(t)
	})
	t.Run("non-participant is rejected", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2, Body: "hello",
		}, nil)

		store := newTestMessageStore(t, mockDb)

		_, err := store.MarkRead("extid", 3)

		var authorizationErr *AuthorizationError
		assert.ErrorAs(t, err, &authorizationErr)
		mockDb.AssertNotCalled(t, "MarkMessageRead", 10, 3)
	})
	t.Run("unknown message", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "nope").Return(database.Message{}, sql.ErrNoRows)

		store := newTestMessageStore(t, mockDb)

		_, err := store.MarkRead("nope", 2)

		var notFoundErr *NotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
	})
}

func TestDeleteForSelf(t *testing.T) {
	t.Run("recipient hides message", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2,
		}, nil)
		mockDb.On("MarkMessageDeletedFor", 10, 2).Return(nil)

		store := newTestMessageStore(t, mockDb)

		require.NoError(t, store.DeleteForSelf("extid", 2))
		mockDb.AssertExpectations(t)
	})
	t.Run("non-participant is rejected", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2,
		}, nil)

		store := newTestMessageStore(t, mockDb)

		var authorizationErr *AuthorizationError
		assert.ErrorAs(t, store.DeleteForSelf("extid", 3), &authorizationErr)
		mockDb.AssertNotCalled(t, "MarkMessageDeletedFor", 10, 3)
	})
}

func TestDeleteForEveryone(t *testing.T) {
	t.Run("sender tombstones message", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2, Body: "secret",
			Media: []database.Media{{RefId: "ref1", Url: "https://blobs/ref1"}},
		}, nil)
		mockDb.On("TombstoneMessage", 10).Return(nil)

		store := newTestMessageStore(t, mockDb)

		msg, err := store.DeleteForEveryone("extid", 1)
		require.NoError(t, err)
		assert.True(t, msg.Deleted)
		assert.Empty(t, msg.Body, "expected tombstone to clear content")
		assert.Empty(t, msg.Media)
		assert.Equal(t, "extid", msg.ExternalId, "expected tombstone to keep its id")

		mockDb.AssertExpectations(t)
	})
	t.Run("non-sender is rejected", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2, Body: "secret",
		}, nil)

		store := newTestMessageStore(t, mockDb)

		_, err := store.DeleteForEveryone("extid", 2)

		var authorizationErr *AuthorizationError
		assert.ErrorAs(t, err, &authorizationErr)
		mockDb.AssertNotCalled(t, "TombstoneMessage", 10)
	})
	t.Run("repeat delete is idempotent", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2, Deleted: true,
		}, nil)
		mockDb.On("TombstoneMessage", 10).Return(nil)

		store := newTestMessageStore(t, mockDb)

		msg, err := store.DeleteForEveryone("extid", 1)
		require.NoError(t, err)
		assert.True(t, msg.Deleted)
	})
}

func TestDeleteMedia(t *testing.T) {
	t.Run("successful delete returns the reference", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{Id: 10, ExternalId: "extid"}, nil)
		mockDb.On("DeleteMessageMedia", 10, "ref1").Return(database.Media{RefId: "ref1", Url: "https://blobs/ref1"}, nil)

		store := newTestMessageStore(t, mockDb)

		ref, err := store.DeleteMedia("extid", "ref1")
		require.NoError(t, err)
		assert.Equal(t, types.MediaRef{Id: "ref1", Url: "https://blobs/ref1"}, ref)
	})
	t.Run("unknown reference", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{Id: 10, ExternalId: "extid"}, nil)
		mockDb.On("DeleteMessageMedia", 10, "nope").Return(database.Media{}, sql.ErrNoRows)

		store := newTestMessageStore(t, mockDb)

		_, err := store.DeleteMedia("extid", "nope")

		var notFoundErr *NotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
	})
}

func TestClearConversation(t *testing.T) {
	t.Run("successful clear", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetConversation", 1, 2).Return(database.Conversation{Id: 5, UserA: 1, UserB: 2}, nil)
		mockDb.On("MarkConversationDeleted", 5, 1).Return(nil)

		store := newTestMessageStore(t, mockDb)

		require.NoError(t, store.ClearConversation(1, 2))
		mockDb.AssertExpectations(t)
	})
	t.Run("no conversation exists", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetConversation", 1, 2).Return(database.Conversation{}, sql.ErrNoRows)

		store := newTestMessageStore(t, mockDb)

		var notFoundErr *NotFoundError
		assert.ErrorAs(t, store.ClearConversation(1, 2), &notFoundErr)
	})
}

func TestConversationMessages(t *testing.T) {
	t.Run("returns viewer history", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetConversation", 1, 2).Return(database.Conversation{Id: 5}, nil)
		mockDb.On("GetConversationMessages", 5, 1, 50).Return([]database.Message{
			{Id: 10, ExternalId: "m1", SenderId: 2, RecipientId: 1, Body: "hey"},
			{Id: 11, ExternalId: "m2", SenderId: 2, RecipientId: 1, Body: "gone", Deleted: true},
		}, nil)

		store := newTestMessageStore(t, mockDb)

		msgs, err := store.ConversationMessages(1, 2, 50)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hey", msgs[0].Body)
		assert.True(t, msgs[1].Deleted)
		assert.Empty(t, msgs[1].Body, "expected tombstoned message content to be blanked")
	})
	t.Run("pair never talked", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetConversation", 1, 2).Return(database.Conversation{}, sql.ErrNoRows)

		store := newTestMessageStore(t, mockDb)

		msgs, err := store.ConversationMessages(1, 2, 50)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestGroupMessages(t *testing.T) {
	group := database.Group{
		Id:         7,
		ExternalId: "grp",
		Members:    []database.GroupMember{{AccountId: 1, Role: types.RoleAdmin}},
	}

	t.Run("member reads history", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetGroupByExternalId", "grp").Return(group, nil)
		mockDb.On("GetGroupMessages", 7, 1, 50).Return([]database.Message{
			{Id: 10, ExternalId: "m1", GroupId: 7, SenderId: 1, Body: "hi"},
		}, nil)

		store := newTestMessageStore(t, mockDb)

		msgs, err := store.GroupMessages("grp", 1, 50)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
	})
	t.Run("non-member is rejected", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetGroupByExternalId", "grp").Return(group, nil)

		store := newTestMessageStore(t, mockDb)

		_, err := store.GroupMessages("grp", 99, 50)

		var authorizationErr *AuthorizationError
		assert.ErrorAs(t, err, &authorizationErr)
	})
}
