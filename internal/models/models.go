package models

import (
	"strings"
	"time"
)

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Priority levels for planner tasks. Ordering is HIGH > MEDIUM > LOW.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// PriorityDisplay returns the human-readable label for a priority code.
func PriorityDisplay(p string) string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	}
	return p
}

type PlannerTask struct {
	ID              int        `json:"id"`
	UserID          int        `json:"user"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DueDate         *time.Time `json:"due_date"`
	Priority        string     `json:"priority"`
	PriorityDisplay string     `json:"priority_display"`
	IsCompleted     bool       `json:"is_completed"`
	ReminderTime    *time.Time `json:"reminder_time"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MoodEntry is append-only; UserID is nil for entries logged without a session.
type MoodEntry struct {
	ID           int       `json:"id"`
	UserID       *int      `json:"user_id,omitempty"`
	Mood         string    `json:"mood"`
	Notes        string    `json:"notes"`
	AISuggestion string    `json:"ai_suggestion"`
	LoggedAt     time.Time `json:"logged_at"`
}

type StudyGroup struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedBy   int       `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	MemberCount int       `json:"member_count"`
}

// GroupSlug is the form of a group name used in socket URLs. Slugs are
// unique across groups.
func GroupSlug(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

type GroupMembership struct {
	GroupID  int       `json:"group_id"`
	UserID   int       `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// MaxMessageLength bounds GroupMessage.Content in runes.
const MaxMessageLength = 2000

type GroupMessage struct {
	ID        int       `json:"id"`
	GroupID   int       `json:"-"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Resource types share one catalog table.
const (
	ResourcePDF       = "PDF"
	ResourceFlashcard = "FLASHCARD"
	ResourceVideo     = "VIDEO"
)

type Resource struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ResourceType string    `json:"resource_type"`
	FileKey      string    `json:"-"`
	FileURL      string    `json:"file_url,omitempty"`
	URL          string    `json:"url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type AIInteractionLog struct {
	ID           int       `json:"id"`
	UserID       *int      `json:"user_id,omitempty"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	IsSuccessful bool      `json:"is_successful"`
	CreatedAt    time.Time `json:"created_at"`
}
