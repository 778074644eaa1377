package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
)

const taskColumns = "id, user_id, title, description, due_date, priority, is_completed, reminder_time, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.PlannerTask, error) {
	var (
		t        models.PlannerTask
		due      sql.NullTime
		reminder sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &due, &t.Priority, &t.IsCompleted, &reminder, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.DueDate = timePtr(due)
	t.ReminderTime = timePtr(reminder)
	t.PriorityDisplay = models.PriorityDisplay(t.Priority)
	return &t, nil
}

func (s *SQLStore) CreateTask(task *models.PlannerTask) error {
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	task.CreatedAt = now()
	task.UpdatedAt = task.CreatedAt
	task.PriorityDisplay = models.PriorityDisplay(task.Priority)

	query := s.rebind(`
		INSERT INTO planner_tasks (user_id, title, description, due_date, priority, is_completed, reminder_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	return s.db.QueryRow(query,
		task.UserID, task.Title, task.Description, nullTime(task.DueDate), task.Priority,
		task.IsCompleted, nullTime(task.ReminderTime), task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
}

func (s *SQLStore) ListTasks(userID int) ([]models.PlannerTask, error) {
	query := s.rebind(`
		SELECT ` + taskColumns + `
		FROM planner_tasks
		WHERE user_id = ?
		ORDER BY due_date IS NULL, due_date ASC,
			CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END,
			created_at ASC, id ASC
	`)
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.PlannerTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *SQLStore) GetTask(userID, taskID int) (*models.PlannerTask, error) {
	query := s.rebind("SELECT " + taskColumns + " FROM planner_tasks WHERE id = ? AND user_id = ?")
	t, err := scanTask(s.db.QueryRow(query, taskID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return t, err
}

func (s *SQLStore) UpdateTask(userID, taskID int, upd store.TaskUpdate) (*models.PlannerTask, error) {
	var (
		sets []string
		args []any
	)
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if upd.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, upd.DueDate.UTC())
	}
	if upd.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *upd.Priority)
	}
	if upd.IsCompleted != nil {
		sets = append(sets, "is_completed = ?")
		args = append(args, *upd.IsCompleted)
	}
	if upd.ClearReminder {
		sets = append(sets, "reminder_time = NULL")
	} else if upd.ReminderTime != nil {
		sets = append(sets, "reminder_time = ?")
		args = append(args, upd.ReminderTime.UTC())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), taskID, userID)

	query := s.rebind("UPDATE planner_tasks SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?")
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetTask(userID, taskID)
}

func (s *SQLStore) DeleteTask(userID, taskID int) error {
	query := s.rebind("DELETE FROM planner_tasks WHERE id = ? AND user_id = ?")
	result, err := s.db.Exec(query, taskID, userID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
