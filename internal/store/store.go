package store

import (
	"errors"
	"time"

	"github.com/pliu/smartaid/internal/models"
)

var (
	// ErrNotFound is returned when a referenced row does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("already exists")
)

// TaskUpdate carries the fields of a partial task update. Nil fields are left
// untouched; ClearDueDate/ClearReminder null the column.
type TaskUpdate struct {
	Title         *string
	Description   *string
	DueDate       *time.Time
	ClearDueDate  bool
	Priority      *string
	IsCompleted   *bool
	ReminderTime  *time.Time
	ClearReminder bool
}

type Store interface {
	Ping() error
	Close() error

	// User operations
	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	GetUserByID(id int) (*models.User, error)

	// Planner operations, always scoped by owner
	CreateTask(task *models.PlannerTask) error
	ListTasks(userID int) ([]models.PlannerTask, error)
	GetTask(userID, taskID int) (*models.PlannerTask, error)
	UpdateTask(userID, taskID int, upd TaskUpdate) (*models.PlannerTask, error)
	DeleteTask(userID, taskID int) error

	// Mood operations
	CreateMoodEntry(entry *models.MoodEntry) error
	RecentMoodEntries(userID, limit int) ([]models.MoodEntry, error)

	// Study group operations
	CreateGroup(group *models.StudyGroup) error
	GetGroup(id int) (*models.StudyGroup, error)
	GetGroupBySlug(slug string) (*models.StudyGroup, error)
	ListGroups(userID int) (mine, others []models.StudyGroup, err error)
	DeleteGroup(id int) error
	AddMember(groupID, userID int) (bool, error)
	RemoveMember(groupID, userID int) (bool, error)
	IsMember(groupID, userID int) (bool, error)

	// Message operations
	SaveMessage(groupID, userID int, content string, at time.Time) (*models.GroupMessage, error)
	RecentMessages(groupID, limit int) ([]models.GroupMessage, error)
	MessagesSince(groupID int, since time.Time) ([]models.GroupMessage, error)

	// Resource library
	CreateResource(res *models.Resource) error
	GetResource(id int) (*models.Resource, error)
	ListResources() ([]models.Resource, error)

	// AI audit trail
	RecordAIInteraction(entry *models.AIInteractionLog) error
	ListAIInteractions(userID, limit int) ([]models.AIInteractionLog, error)
}
