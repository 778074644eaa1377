package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pliu/smartaid/internal/ai"
	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/middleware"
	"github.com/pliu/smartaid/internal/models"
)

const recentMoodLimit = 5

type moodRequest struct {
	Mood  string `json:"mood" validate:"required,notblank,max=50"`
	Notes string `json:"notes" validate:"max=1000"`
}

type moodResponse struct {
	Mood         string `json:"mood"`
	AISuggestion string `json:"ai_suggestion"`
}

type moodLogItem struct {
	Mood            string    `json:"mood"`
	AISuggestion    string    `json:"ai_suggestion"`
	LoggedAt        time.Time `json:"logged_at"`
	LoggedAtDisplay string    `json:"logged_at_display"`
}

// SaveMood records a mood entry with an AI suggestion. The entry is stored
// whatever the AI outcome; anonymous callers get an entry without owner.
func (h *AIHandler) SaveMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	mood := strings.TrimSpace(req.Mood)

	userID, authenticated := middleware.UserIDFromContext(r.Context())
	suggestion := ai.MoodUnavailable
	if h.AI != nil {
		suggestion = h.AI.MoodSuggestion(r.Context(), userID, mood, req.Notes)
	}

	entry := &models.MoodEntry{
		Mood:         mood,
		Notes:        req.Notes,
		AISuggestion: suggestion,
	}
	if authenticated {
		entry.UserID = &userID
	}
	if err := h.Store.CreateMoodEntry(entry); err != nil {
		internalError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Debug().Int("mood_entry_id", entry.ID).Str("mood", mood).Msg("Mood logged")
	respondWithJSON(w, http.StatusOK, moodResponse{Mood: entry.Mood, AISuggestion: entry.AISuggestion})
}

// RecentMoods returns the caller's latest entries, newest first.
func (h *AIHandler) RecentMoods(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	entries, err := h.Store.RecentMoodEntries(userID, recentMoodLimit)
	if err != nil {
		internalError(w, r, err)
		return
	}

	now := time.Now()
	items := make([]moodLogItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, moodLogItem{
			Mood:            e.Mood,
			AISuggestion:    e.AISuggestion,
			LoggedAt:        e.LoggedAt,
			LoggedAtDisplay: humanize.RelTime(e.LoggedAt, now, "ago", "from now"),
		})
	}
	respondWithJSON(w, http.StatusOK, items)
}
