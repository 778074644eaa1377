package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pliu/smartaid/internal/store"
	"github.com/pliu/smartaid/internal/ws"
)

// ServeChat upgrades /ws/chat/{group_name}/ for a member of the group.
// group_name is the slug of the group name.
func (h *GroupHandler) ServeChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	group, err := h.Store.GetGroupBySlug(mux.Vars(r)["group_name"])
	if errors.Is(err, store.ErrNotFound) {
		respondWithError(w, r, http.StatusNotFound, "Not found.", nil)
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	isMember, err := h.Store.IsMember(group.ID, userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !isMember {
		respondWithError(w, r, http.StatusForbidden, "Permission denied. Not a group member.", nil)
		return
	}

	ws.ServeWs(h.Hub, w, r, userID, group.ID, ws.Topic(group.ID))
}
