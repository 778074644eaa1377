package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
	"github.com/pliu/smartaid/internal/validation"
)

const invalidDatetime = "Datetime has wrong format. Use an RFC 3339 timestamp."

type taskRequest struct {
	Title        *string      `json:"title" validate:"omitnil,notblank,max=255"`
	Description  *string      `json:"description"`
	DueDate      nullableTime `json:"due_date"`
	Priority     *string      `json:"priority" validate:"omitnil,oneof=LOW MEDIUM HIGH"`
	IsCompleted  *bool        `json:"is_completed"`
	ReminderTime nullableTime `json:"reminder_time"`
}

// check reports the errors struct tags cannot express. requireTitle is set
// for create and full update.
func (req *taskRequest) check(requireTitle bool) validation.FieldErrors {
	fields := validation.FieldErrors{}
	if requireTitle && req.Title == nil {
		fields["title"] = "This field is required."
	}
	if req.DueDate.Invalid {
		fields["due_date"] = invalidDatetime
	}
	if req.ReminderTime.Invalid {
		fields["reminder_time"] = invalidDatetime
	}
	return fields
}

func (req *taskRequest) update() store.TaskUpdate {
	upd := store.TaskUpdate{
		Description:   req.Description,
		Priority:      req.Priority,
		IsCompleted:   req.IsCompleted,
		DueDate:       req.DueDate.ptr(),
		ClearDueDate:  req.DueDate.Set && req.DueDate.Null,
		ReminderTime:  req.ReminderTime.ptr(),
		ClearReminder: req.ReminderTime.Set && req.ReminderTime.Null,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		upd.Title = &title
	}
	return upd
}

// PlannerHandler serves the owner-scoped task API. Rows of other users are
// indistinguishable from missing ones.
type PlannerHandler struct {
	Store store.Store
}

func (h *PlannerHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	tasks, err := h.Store.ListTasks(userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tasks)
}

func (h *PlannerHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if fields := req.check(true); len(fields) > 0 {
		respondWithFieldErrors(w, fields)
		return
	}

	task := &models.PlannerTask{
		UserID:       userID,
		Title:        strings.TrimSpace(*req.Title),
		DueDate:      req.DueDate.ptr(),
		ReminderTime: req.ReminderTime.ptr(),
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.IsCompleted != nil {
		task.IsCompleted = *req.IsCompleted
	}
	if err := h.Store.CreateTask(task); err != nil {
		internalError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, task)
}

func (h *PlannerHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	task, err := h.Store.GetTask(userID, taskID)
	if err != nil {
		h.taskError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

// UpdateTask handles PUT and PATCH. Both only touch the supplied fields; PUT
// additionally requires a title.
func (h *PlannerHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req taskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if fields := req.check(r.Method == http.MethodPut); len(fields) > 0 {
		respondWithFieldErrors(w, fields)
		return
	}

	task, err := h.Store.UpdateTask(userID, taskID, req.update())
	if err != nil {
		h.taskError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (h *PlannerHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Store.DeleteTask(userID, taskID); err != nil {
		h.taskError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlannerHandler) taskError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondWithError(w, r, http.StatusNotFound, "Not found.", nil)
		return
	}
	internalError(w, r, err)
}
