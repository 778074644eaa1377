package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
	"github.com/pliu/smartaid/internal/validation"
	"github.com/pliu/smartaid/internal/ws"
)

// recentMessageLimit is the history size returned by a poll without cursor.
const recentMessageLimit = 50

// GroupHandler serves study groups and their HTTP chat endpoints. Messages
// posted here go through Hub so socket subscribers see them too.
type GroupHandler struct {
	Store store.Store
	Hub   *ws.Hub
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type groupsResponse struct {
	MyGroups    []models.StudyGroup `json:"my_groups"`
	OtherGroups []models.StudyGroup `json:"other_groups"`
}

type chatRoomResponse struct {
	Group     *models.StudyGroup `json:"group"`
	IsCreator bool               `json:"is_creator"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type sentMessageResponse struct {
	Status  string               `json:"status"`
	Message *models.GroupMessage `json:"message"`
}

type messagesResponse struct {
	Messages []models.GroupMessage `json:"messages"`
}

func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	mine, others, err := h.Store.ListGroups(userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, groupsResponse{MyGroups: mine, OtherGroups: others})
}

// CreateGroup creates a group with the caller as creator and first member.
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	group := &models.StudyGroup{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedBy:   userID,
	}
	if err := h.Store.CreateGroup(group); err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondWithFieldErrors(w, validation.FieldErrors{"name": "Study group with this name already exists."})
			return
		}
		internalError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().Int("group_id", group.ID).Int("user_id", userID).Msg("Study group created")
	respondWithJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	added, err := h.Store.AddMember(group.ID, userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !added {
		respondWithJSON(w, http.StatusOK, statusResponse{
			Status:  "info",
			Message: fmt.Sprintf("You are already a member of %s.", group.Name),
		})
		return
	}
	respondWithJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Successfully joined the group: %s!", group.Name),
	})
}

func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	removed, err := h.Store.RemoveMember(group.ID, userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !removed {
		respondWithError(w, r, http.StatusBadRequest, "You are not currently a member of this group.", nil)
		return
	}
	if err := h.Hub.Broker().CloseMember(r.Context(), ws.Topic(group.ID), userID); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Int("group_id", group.ID).Int("user_id", userID).Msg("Could not close chat connections")
	}
	respondWithJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: fmt.Sprintf("You have left the group %q.", group.Name),
	})
}

// DeleteGroup removes a group with its memberships and messages. Only the
// creator may do so; open sockets of the group are closed afterwards.
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, group, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	if group.CreatedBy != userID {
		respondWithError(w, r, http.StatusForbidden, "You do not have permission to delete this group.", nil)
		return
	}
	if err := h.Store.DeleteGroup(group.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		internalError(w, r, err)
		return
	}
	if err := h.Hub.Broker().CloseTopic(r.Context(), ws.Topic(group.ID)); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Int("group_id", group.ID).Msg("Could not close chat connections")
	}

	logging.Ctx(r.Context()).Info().Int("group_id", group.ID).Int("user_id", userID).Msg("Study group deleted")
	respondWithJSON(w, http.StatusOK, statusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Group %q deleted successfully.", group.Name),
	})
}

// ChatRoom describes a group to one of its members.
func (h *GroupHandler) ChatRoom(w http.ResponseWriter, r *http.Request) {
	userID, group, ok := h.loadMemberGroup(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, chatRoomResponse{Group: group, IsCreator: group.CreatedBy == userID})
}

// SendMessage stores a message and broadcasts it to the group's sockets.
func (h *GroupHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, group, ok := h.loadMemberGroup(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondWithError(w, r, http.StatusBadRequest, "Message content cannot be empty.", nil)
		return
	}

	msg, err := h.Hub.Post(r.Context(), ws.Post{
		GroupID: group.ID,
		Topic:   ws.Topic(group.ID),
		UserID:  userID,
		Content: req.Content,
	})
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusCreated, sentMessageResponse{Status: "ok", Message: msg})
	case errors.Is(err, ws.ErrEmptyMessage):
		respondWithError(w, r, http.StatusBadRequest, "Message content cannot be empty.", nil)
	case errors.Is(err, ws.ErrMessageTooLong):
		respondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Ensure this field has no more than %d characters.", models.MaxMessageLength), nil)
	case errors.Is(err, ws.ErrNotMember):
		respondWithError(w, r, http.StatusForbidden, "Permission denied. Not a group member.", nil)
	case errors.Is(err, ws.ErrHubStopped):
		respondWithError(w, r, http.StatusServiceUnavailable, "Chat is unavailable.", err)
	default:
		internalError(w, r, err)
	}
}

// FetchMessages is the polling fallback. With last_timestamp it returns the
// messages strictly newer than it; otherwise, or when the value does not
// parse, the most recent history.
func (h *GroupHandler) FetchMessages(w http.ResponseWriter, r *http.Request) {
	_, group, ok := h.loadMemberGroup(w, r)
	if !ok {
		return
	}

	var (
		messages []models.GroupMessage
		err      error
	)
	raw := r.URL.Query().Get("last_timestamp")
	since, parseErr := parseTimestamp(raw)
	switch {
	case raw != "" && parseErr == nil:
		messages, err = h.Store.MessagesSince(group.ID, since)
	default:
		if raw != "" {
			logging.Ctx(r.Context()).Warn().Err(parseErr).Int("group_id", group.ID).Msg("Ignoring malformed last_timestamp")
		}
		messages, err = h.Store.RecentMessages(group.ID, recentMessageLimit)
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, messagesResponse{Messages: messages})
}

// loadGroup resolves the {group_id} path variable for an authenticated caller.
func (h *GroupHandler) loadGroup(w http.ResponseWriter, r *http.Request) (int, *models.StudyGroup, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return 0, nil, false
	}
	groupID, ok := pathID(w, r, "group_id")
	if !ok {
		return 0, nil, false
	}
	group, err := h.Store.GetGroup(groupID)
	if errors.Is(err, store.ErrNotFound) {
		respondWithError(w, r, http.StatusNotFound, "Not found.", nil)
		return 0, nil, false
	}
	if err != nil {
		internalError(w, r, err)
		return 0, nil, false
	}
	return userID, group, true
}

// loadMemberGroup is loadGroup plus a membership check.
func (h *GroupHandler) loadMemberGroup(w http.ResponseWriter, r *http.Request) (int, *models.StudyGroup, bool) {
	userID, group, ok := h.loadGroup(w, r)
	if !ok {
		return 0, nil, false
	}
	isMember, err := h.Store.IsMember(group.ID, userID)
	if err != nil {
		internalError(w, r, err)
		return 0, nil, false
	}
	if !isMember {
		respondWithError(w, r, http.StatusForbidden, "Permission denied. Not a group member.", nil)
		return 0, nil, false
	}
	return userID, group, true
}
