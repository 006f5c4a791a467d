package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	MemberIds   []int  `json:"member_ids,omitempty"`
}

type UpdateGroupRequest struct {
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}

type GroupMembersRequest struct {
	UserIds []int `json:"user_ids"`
}

type PromoteRequest struct {
	UserId int `json:"user_id"`
}

func (s *ChatApp) createGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.roster.Create(req.Name, userId, req.MemberIds, req.Description, req.Icon)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyGroupUpdated(group)

	s.writeJson(w, http.StatusCreated, group)
}

func (s *ChatApp) getGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.roster.Group(r.PathValue("id"))
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, group)
}

func (s *ChatApp) updateGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groupId := r.PathValue("id")
	if req.Description != nil {
		if err := s.roster.ChangeDescription(groupId, userId, *req.Description); err != nil {
			errResp := fromChatError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if req.Icon != nil {
		if err := s.roster.ChangeIcon(groupId, userId, *req.Icon); err != nil {
			errResp := fromChatError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	group, err := s.roster.Group(groupId)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyGroupUpdated(group)

	s.writeJson(w, http.StatusOK, group)
}

func (s *ChatApp) addGroupMembers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req GroupMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UserIds) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.roster.AddMembers(r.PathValue("id"), userId, req.UserIds)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyGroupUpdated(group)

	s.writeJson(w, http.StatusOK, group)
}

func (s *ChatApp) removeGroupMembers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req GroupMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UserIds) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.roster.RemoveMembers(r.PathValue("id"), userId, req.UserIds)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyGroupUpdated(group)

	s.writeJson(w, http.StatusOK, group)
}

func (s *ChatApp) promoteMember(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groupId := r.PathValue("id")
	if err := s.roster.Promote(groupId, userId, req.UserId); err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.roster.Group(groupId)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyGroupUpdated(group)

	s.writeJson(w, http.StatusOK, group)
}

func (s *ChatApp) demoteAdmin(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	targetId, err := strconv.Atoi(r.PathValue("userId"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// demoting the last admin requires a successor to take over
	var successorId int
	if successorStr := r.URL.Query().Get("successor_id"); successorStr != "" {
		successorId, err = strconv.Atoi(successorStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	groupId := r.PathValue("id")
	if err := s.roster.Demote(groupId, userId, targetId, successorId); err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	group, err := s.roster.Group(groupId)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyGroupUpdated(group)

	s.writeJson(w, http.StatusOK, group)
}

func (s *ChatApp) leaveGroup(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	groupId := r.PathValue("id")
	if err := s.roster.Leave(groupId, userId); err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if group, err := s.roster.Group(groupId); err == nil {
		s.cs.NotifyGroupUpdated(group)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) clearGroupChat(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.store.ClearGroupChat(r.PathValue("id"), userId); err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}
