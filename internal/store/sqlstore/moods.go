package sqlstore

import (
	"database/sql"

	"github.com/pliu/smartaid/internal/models"
)

func (s *SQLStore) CreateMoodEntry(entry *models.MoodEntry) error {
	entry.LoggedAt = now()
	query := s.rebind("INSERT INTO mood_entries (user_id, mood, notes, ai_suggestion, logged_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	return s.db.QueryRow(query, nullInt(entry.UserID), entry.Mood, entry.Notes, entry.AISuggestion, entry.LoggedAt).Scan(&entry.ID)
}

// RecentMoodEntries returns the user's latest entries, newest first.
func (s *SQLStore) RecentMoodEntries(userID, limit int) ([]models.MoodEntry, error) {
	query := s.rebind(`
		SELECT id, user_id, mood, notes, ai_suggestion, logged_at
		FROM mood_entries
		WHERE user_id = ?
		ORDER BY logged_at DESC, id DESC
		LIMIT ?
	`)
	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.MoodEntry{}
	for rows.Next() {
		var (
			e   models.MoodEntry
			uid sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &uid, &e.Mood, &e.Notes, &e.AISuggestion, &e.LoggedAt); err != nil {
			return nil, err
		}
		e.UserID = intPtr(uid)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
