package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/nmorelli/go-chatserver/internal/chat"
	"github.com/nmorelli/go-chatserver/internal/types"
)

// Notification event names emitted to connected clients.
const (
	EventUserOnline       = "user.online"
	EventUserOffline      = "user.offline"
	EventMessageDelivered = "message.delivered"
	EventMessageQueued    = "message.queued"
	EventMessageRead      = "message.read"
	EventMessageDeleted   = "message.deleted"
	EventGroupUpdated     = "group.updated"
	EventUserTyping       = "user.typing"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	Read    *Read    `json:"read,omitempty"`
	Typing  *Typing  `json:"typing,omitempty"`
	UserId  int      `json:"-"`
	client  *Client  `json:"-"`
}

type Publish struct {
	RecipientId int              `json:"recipient_id,omitempty"`
	GroupId     string           `json:"group_id,omitempty"`
	Body        string           `json:"body,omitempty"`
	Media       []types.MediaRef `json:"media,omitempty"`
}

type Read struct {
	MessageId string `json:"message_id"`
}

type Typing struct {
	RecipientId int    `json:"recipient_id,omitempty"`
	GroupId     string `json:"group_id,omitempty"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Event    string       `json:"event"`
	Presence *Presence    `json:"presence,omitempty"`
	Delivery *Delivery    `json:"delivery,omitempty"`
	Group    *Group       `json:"group,omitempty"`
	Typing   *TypingEvent `json:"typing,omitempty"`
}

type Presence struct {
	UserId int  `json:"user_id"`
	Online bool `json:"online"`
}

type Delivery struct {
	MessageId string `json:"message_id"`
	UserId    int    `json:"user_id,omitempty"`
}

type Group struct {
	GroupId string `json:"group_id"`
}

type TypingEvent struct {
	UserId  int    `json:"user_id"`
	GroupId string `json:"group_id,omitempty"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

// errorResponse maps a store/roster failure onto a wire response.
// Infrastructure failures collapse to ErrInternalError so their detail
// never reaches the client.
func errorResponse(id int, err error) *ServerMessage {
	var (
		validationErr    *chat.ValidationError
		authorizationErr *chat.AuthorizationError
		notFoundErr      *chat.NotFoundError
	)

	var resp *Response
	switch {
	case errors.As(err, &validationErr):
		resp = &Response{ResponseCode: http.StatusBadRequest, Error: validationErr.Error()}
	case errors.As(err, &authorizationErr):
		resp = &Response{ResponseCode: http.StatusForbidden, Error: authorizationErr.Error()}
	case errors.As(err, &notFoundErr):
		resp = &Response{ResponseCode: http.StatusNotFound, Error: notFoundErr.Error()}
	default:
		return ErrInternalError(id)
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: resp,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
