package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
)

func (s *SQLStore) CreateUser(user *models.User) error {
	user.CreatedAt = now()
	query := s.rebind("INSERT INTO users (username, email, password, created_at) VALUES (?, ?, ?, ?) RETURNING id")
	err := s.db.QueryRow(query, user.Username, user.Email, user.Password, user.CreatedAt).Scan(&user.ID)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *SQLStore) GetUserByUsername(username string) (*models.User, error) {
	query := s.rebind("SELECT id, username, email, password, created_at FROM users WHERE username = ?")
	return s.scanUser(s.db.QueryRow(query, username))
}

func (s *SQLStore) GetUserByID(id int) (*models.User, error) {
	query := s.rebind("SELECT id, username, email, password, created_at FROM users WHERE id = ?")
	return s.scanUser(s.db.QueryRow(query, id))
}

func (s *SQLStore) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
