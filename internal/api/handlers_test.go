package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nmorelli/go-chatserver/internal/chat"
	"github.com/nmorelli/go-chatserver/internal/config"
	"github.com/nmorelli/go-chatserver/internal/database"
	"github.com/nmorelli/go-chatserver/internal/server"
	"github.com/nmorelli/go-chatserver/internal/stats"
	"github.com/nmorelli/go-chatserver/internal/testutil"
	"github.com/nmorelli/go-chatserver/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSigningSecret = "c29tZV9zZWNyZXQ="

func newTestApp(t *testing.T, mockDb *database.MockChatRepository) *ChatApp {
	t.Helper()

	logger := testutil.TestLogger(t)
	store := chat.NewMessageStore(mockDb, logger)
	roster := chat.NewGroupRoster(mockDb, logger)

	mockStats := &stats.MockStatsUpdater{}
	mockStats.On("RegisterMetric", mock.AnythingOfType("string")).Return()
	mockStats.On("Incr", mock.AnythingOfType("string")).Return()
	mockStats.On("Decr", mock.AnythingOfType("string")).Return()
	mockStats.On("Add", mock.AnythingOfType("string"), mock.AnythingOfType("int")).Return()

	cs, err := server.NewChatServer(logger, mockDb, store, roster, mockStats)
	require.NoError(t, err)

	cfg, err := config.NewConfig("localhost:8000",
		"host=localhost user=postgres dbname=postgres sslmode=disable",
		testSigningSecret, []string{"http://localhost:3000"})
	require.NoError(t, err)

	return NewChatApp(http.NewServeMux(), logger, cs, mockDb, store, roster, cfg)
}

func authedRequest(method, target string, body []byte, userId int) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(WithUserId(req.Context(), userId))
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockDb := &database.MockChatRepository{}
			mockDb.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockDb)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
			mockDb.AssertExpectations(t)
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	t.Run("successfully creates a new account", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.Username == expectedUser.Username &&
				p.EmailAddress == expectedUser.EmailAddress &&
				p.PasswordHash != ""
		})).Return(expectedUser, nil)

		app := newTestApp(t, mockDb)

		body, _ := json.Marshal(RegisterRequest{
			Username: expectedUser.Username,
			Email:    expectedUser.EmailAddress,
			Password: "password",
		})
		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var u types.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		assert.Equal(t, expectedUser.Id, u.Id)
		assert.Equal(t, expectedUser.Username, u.Username)

		mockDb.AssertExpectations(t)
	})
	t.Run("fails with invalid json body", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register",
			bytes.NewReader([]byte("invalid json"))))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
	t.Run("fails with missing fields", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		body, _ := json.Marshal(RegisterRequest{Email: "a@b.c", Password: "password"})
		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	pwdHash, err := hashPassword("password")
	require.NoError(t, err)

	dbUser := database.User{
		Id:           1,
		Username:     "user",
		EmailAddress: "user@example.com",
		PasswordHash: pwdHash,
	}

	t.Run("successful login sets session cookie", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil)

		app := newTestApp(t, mockDb)

		body, _ := json.Marshal(LoginRequest{Email: dbUser.EmailAddress, Password: "password"})
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, rr.Code)

		cookie := findCookie(rr, tokenCookieKey)
		require.NotNil(t, cookie, "expected session cookie to be set")
		assert.True(t, cookie.HttpOnly)

		// the cookie round-trips through the auth middleware
		userId, err := app.extractUserIdFromToken(cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, dbUser.Id, userId)
	})
	t.Run("wrong password", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil)

		app := newTestApp(t, mockDb)

		body, _ := json.Marshal(LoginRequest{Email: dbUser.EmailAddress, Password: "wrong"})
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
	t.Run("unknown email", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetAccountByEmail", "nobody@example.com").Return(database.User{}, sql.ErrNoRows)

		app := newTestApp(t, mockDb)

		body, _ := json.Marshal(LoginRequest{Email: "nobody@example.com", Password: "password"})
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Error("expected handler not to be called")
		})

		rr := httptest.NewRecorder()
		handler(rr, httptest.NewRequest(http.MethodGet, "/api/account", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
	t.Run("valid token reaches handler with user id", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		token, err := app.createJwtForSession(types.User{Id: 42}, time.Hour)
		require.NoError(t, err)

		var gotUserId int
		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			gotUserId, _ = UserId(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		req.AddCookie(createJwtCookie(token, time.Hour))

		rr := httptest.NewRecorder()
		handler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 42, gotUserId)
	})
	t.Run("expired token", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		token, err := app.createJwtForSession(types.User{Id: 42}, -time.Hour)
		require.NoError(t, err)

		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Error("expected handler not to be called")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		req.AddCookie(createJwtCookie(token, time.Hour))

		rr := httptest.NewRecorder()
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestSendMessageHandler(t *testing.T) {
	t.Run("direct message to offline recipient", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetOrCreateConversation", 1, 2).Return(database.Conversation{Id: 5}, nil)
		mockDb.On("CreateMessage", mock.AnythingOfType("database.CreateMessageParams")).Return(database.Message{
			Id: 10, ExternalId: "extid", ConversationId: 5, SenderId: 1, RecipientId: 2, Body: "hello",
		}, nil)
		mockDb.On("IsBlocked", 1, 2).Return(false, nil)
		mockDb.On("EnqueueOffline", 2, 10).Return(nil)

		app := newTestApp(t, mockDb)

		body, _ := json.Marshal(SendMessageRequest{RecipientId: 2, Body: "hello"})
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var msg types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&msg))
		assert.Equal(t, "extid", msg.ExternalId)

		mockDb.AssertExpectations(t)
	})
	t.Run("empty payload", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		body, _ := json.Marshal(SendMessageRequest{RecipientId: 2})
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
	t.Run("recipient is the sender", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		app := newTestApp(t, mockDb)

		body, _ := json.Marshal(SendMessageRequest{RecipientId: 1, Body: "hello"})
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockDb.AssertNotCalled(t, "GetOrCreateConversation")
	})
	t.Run("no recipient or group", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		body, _ := json.Marshal(SendMessageRequest{Body: "hello"})
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
	t.Run("group message from non-member", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetGroupByExternalId", "grp").Return(database.Group{
			Id: 7, ExternalId: "grp",
			Members: []database.GroupMember{{AccountId: 2, Role: types.RoleAdmin}},
		}, nil)

		app := newTestApp(t, mockDb)

		body, _ := json.Marshal(SendMessageRequest{GroupId: "grp", Body: "hello"})
		rr := httptest.NewRecorder()
		app.sendMessage(rr, authedRequest(http.MethodPost, "/api/messages", body, 1))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestGetMessagesHandler(t *testing.T) {
	t.Run("conversation history", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetConversation", 1, 2).Return(database.Conversation{Id: 5}, nil)
		mockDb.On("GetConversationMessages", 5, 1, 50).Return([]database.Message{
			{Id: 10, ExternalId: "m1", SenderId: 2, RecipientId: 1, Body: "hey"},
		}, nil)

		app := newTestApp(t, mockDb)

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?user_id=2", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var msgs []types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&msgs))
		require.Len(t, msgs, 1)
		assert.Equal(t, "hey", msgs[0].Body)
	})
	t.Run("missing filter", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
	t.Run("invalid limit", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?user_id=2&limit=abc", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDeleteMessageForEveryoneHandler(t *testing.T) {
	t.Run("sender deletes for everyone", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2, Body: "secret",
		}, nil)
		mockDb.On("TombstoneMessage", 10).Return(nil)

		app := newTestApp(t, mockDb)

		req := authedRequest(http.MethodDelete, "/api/messages/extid/everyone", nil, 1)
		req.SetPathValue("id", "extid")

		rr := httptest.NewRecorder()
		app.deleteMessageForEveryone(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var msg types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&msg))
		assert.True(t, msg.Deleted)
		assert.Empty(t, msg.Body)
	})
	t.Run("non-sender is forbidden", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetMessageByExternalId", "extid").Return(database.Message{
			Id: 10, ExternalId: "extid", SenderId: 1, RecipientId: 2, Body: "secret",
		}, nil)

		app := newTestApp(t, mockDb)

		req := authedRequest(http.MethodDelete, "/api/messages/extid/everyone", nil, 2)
		req.SetPathValue("id", "extid")

		rr := httptest.NewRecorder()
		app.deleteMessageForEveryone(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestBlockHandlers(t *testing.T) {
	t.Run("create block", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetAccountById", 2).Return(database.User{Id: 2, Username: "other"}, nil)
		mockDb.On("CreateBlock", 1, 2).Return(nil)

		app := newTestApp(t, mockDb)

		req := authedRequest(http.MethodPut, "/api/blocks/2", nil, 1)
		req.SetPathValue("userId", "2")

		rr := httptest.NewRecorder()
		app.createBlock(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		mockDb.AssertExpectations(t)
	})
	t.Run("self block is rejected", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{})

		req := authedRequest(http.MethodPut, "/api/blocks/1", nil, 1)
		req.SetPathValue("userId", "1")

		rr := httptest.NewRecorder()
		app.createBlock(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
	t.Run("block unknown user", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("GetAccountById", 99).Return(database.User{}, sql.ErrNoRows)

		app := newTestApp(t, mockDb)

		req := authedRequest(http.MethodPut, "/api/blocks/99", nil, 1)
		req.SetPathValue("userId", "99")

		rr := httptest.NewRecorder()
		app.createBlock(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
	t.Run("delete block", func(t *testing.T) {
		mockDb := &database.MockChatRepository{}
		mockDb.On("DeleteBlock", 1, 2).Return(nil)

		app := newTestApp(t, mockDb)

		req := authedRequest(http.MethodDelete, "/api/blocks/2", nil, 1)
		req.SetPathValue("userId", "2")

		rr := httptest.NewRecorder()
		app.deleteBlock(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		mockDb.AssertExpectations(t)
	})
}
