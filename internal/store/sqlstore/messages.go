package sqlstore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
)

// Message timestamps are kept as integer microseconds so that the
// strictly-newer comparison used by polling is exact on every driver.

// SaveMessage stores the message and resolves its author's username in one
// transaction, so an error always means nothing was stored.
func (s *SQLStore) SaveMessage(groupID, userID int, content string, at time.Time) (*models.GroupMessage, error) {
	msg := &models.GroupMessage{
		GroupID:   groupID,
		UserID:    userID,
		Content:   content,
		Timestamp: time.UnixMicro(at.UnixMicro()).UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := s.rebind("INSERT INTO group_messages (group_id, user_id, content, timestamp_us) VALUES (?, ?, ?, ?) RETURNING id")
	if err := tx.QueryRow(query, groupID, userID, content, at.UnixMicro()).Scan(&msg.ID); err != nil {
		return nil, err
	}
	if err := tx.QueryRow(s.rebind("SELECT username FROM users WHERE id = ?"), userID).Scan(&msg.Username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentMessages returns the newest limit messages in chronological order.
func (s *SQLStore) RecentMessages(groupID, limit int) ([]models.GroupMessage, error) {
	query := s.rebind(`
		SELECT m.id, m.group_id, m.user_id, u.username, m.content, m.timestamp_us
		FROM group_messages m
		JOIN users u ON m.user_id = u.id
		WHERE m.group_id = ?
		ORDER BY m.timestamp_us DESC, m.id DESC
		LIMIT ?
	`)
	messages, err := s.queryMessages(query, groupID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessagesSince returns every message strictly newer than since, oldest first.
func (s *SQLStore) MessagesSince(groupID int, since time.Time) ([]models.GroupMessage, error) {
	query := s.rebind(`
		SELECT m.id, m.group_id, m.user_id, u.username, m.content, m.timestamp_us
		FROM group_messages m
		JOIN users u ON m.user_id = u.id
		WHERE m.group_id = ? AND m.timestamp_us > ?
		ORDER BY m.timestamp_us ASC, m.id ASC
	`)
	return s.queryMessages(query, groupID, floorMicro(since))
}

func (s *SQLStore) queryMessages(query string, args ...any) ([]models.GroupMessage, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.GroupMessage{}
	for rows.Next() {
		var (
			m  models.GroupMessage
			us int64
		)
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Username, &m.Content, &us); err != nil {
			return nil, err
		}
		m.Timestamp = time.UnixMicro(us).UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// floorMicro rounds toward negative infinity; stored values are whole
// microseconds so m > floor(t) is equivalent to m > t.
func floorMicro(t time.Time) int64 {
	us := t.UnixMicro()
	if time.UnixMicro(us).After(t) {
		us--
	}
	return us
}
