package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
)

func (s *SQLStore) CreateResource(res *models.Resource) error {
	res.CreatedAt = now()
	query := s.rebind("INSERT INTO resources (title, description, resource_type, file_key, url, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id")
	return s.db.QueryRow(query, res.Title, res.Description, res.ResourceType, res.FileKey, res.URL, res.CreatedAt).Scan(&res.ID)
}

func (s *SQLStore) GetResource(id int) (*models.Resource, error) {
	var r models.Resource
	query := s.rebind("SELECT id, title, description, resource_type, file_key, url, created_at FROM resources WHERE id = ?")
	err := s.db.QueryRow(query, id).Scan(&r.ID, &r.Title, &r.Description, &r.ResourceType, &r.FileKey, &r.URL, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResources returns the whole catalog, newest first.
func (s *SQLStore) ListResources() ([]models.Resource, error) {
	rows, err := s.db.Query("SELECT id, title, description, resource_type, file_key, url, created_at FROM resources ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []models.Resource{}
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.ResourceType, &r.FileKey, &r.URL, &r.CreatedAt); err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

func (s *SQLStore) RecordAIInteraction(entry *models.AIInteractionLog) error {
	entry.CreatedAt = now()
	query := s.rebind("INSERT INTO ai_interaction_logs (user_id, prompt, response, is_successful, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	return s.db.QueryRow(query, nullInt(entry.UserID), entry.Prompt, entry.Response, entry.IsSuccessful, entry.CreatedAt).Scan(&entry.ID)
}

func (s *SQLStore) ListAIInteractions(userID, limit int) ([]models.AIInteractionLog, error) {
	query := s.rebind(`
		SELECT id, user_id, prompt, response, is_successful, created_at
		FROM ai_interaction_logs
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.AIInteractionLog{}
	for rows.Next() {
		var (
			l   models.AIInteractionLog
			uid sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &uid, &l.Prompt, &l.Response, &l.IsSuccessful, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.UserID = intPtr(uid)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
