package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
)

// CreateGroup inserts the group and makes its creator the first member. A
// name or slug already taken by another group is ErrConflict.
func (s *SQLStore) CreateGroup(group *models.StudyGroup) error {
	group.Slug = models.GroupSlug(group.Name)
	group.CreatedAt = now()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind("INSERT INTO study_groups (name, slug, description, created_by, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	err = tx.QueryRow(query, group.Name, group.Slug, group.Description, group.CreatedBy, group.CreatedAt).Scan(&group.ID)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return err
	}

	query = s.rebind("INSERT INTO group_memberships (group_id, user_id, joined_at) VALUES (?, ?, ?)")
	if _, err := tx.Exec(query, group.ID, group.CreatedBy, group.CreatedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	group.MemberCount = 1
	return nil
}

const groupSelect = `
	SELECT g.id, g.name, g.slug, g.description, g.created_by, g.created_at,
		(SELECT COUNT(*) FROM group_memberships c WHERE c.group_id = g.id)
	FROM study_groups g
`

func scanGroup(row rowScanner) (*models.StudyGroup, error) {
	var g models.StudyGroup
	if err := row.Scan(&g.ID, &g.Name, &g.Slug, &g.Description, &g.CreatedBy, &g.CreatedAt, &g.MemberCount); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *SQLStore) GetGroup(id int) (*models.StudyGroup, error) {
	g, err := scanGroup(s.db.QueryRow(s.rebind(groupSelect+"WHERE g.id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return g, err
}

func (s *SQLStore) GetGroupBySlug(slug string) (*models.StudyGroup, error) {
	g, err := scanGroup(s.db.QueryRow(s.rebind(groupSelect+"WHERE g.slug = ?"), slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return g, err
}

// ListGroups splits all groups into those the user belongs to and the rest,
// both ordered by name.
func (s *SQLStore) ListGroups(userID int) ([]models.StudyGroup, []models.StudyGroup, error) {
	mine, err := s.queryGroups(groupSelect+`
		WHERE EXISTS (SELECT 1 FROM group_memberships m WHERE m.group_id = g.id AND m.user_id = ?)
		ORDER BY g.name`, userID)
	if err != nil {
		return nil, nil, err
	}
	others, err := s.queryGroups(groupSelect+`
		WHERE NOT EXISTS (SELECT 1 FROM group_memberships m WHERE m.group_id = g.id AND m.user_id = ?)
		ORDER BY g.name`, userID)
	if err != nil {
		return nil, nil, err
	}
	return mine, others, nil
}

func (s *SQLStore) queryGroups(query string, args ...any) ([]models.StudyGroup, error) {
	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []models.StudyGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (s *SQLStore) DeleteGroup(groupID int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Delete messages first (foreign key constraint)
	if _, err := tx.Exec(s.rebind("DELETE FROM group_messages WHERE group_id = ?"), groupID); err != nil {
		return err
	}
	if _, err := tx.Exec(s.rebind("DELETE FROM group_memberships WHERE group_id = ?"), groupID); err != nil {
		return err
	}
	result, err := tx.Exec(s.rebind("DELETE FROM study_groups WHERE id = ?"), groupID)
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
	return tx.Commit()
}

// AddMember reports whether a new membership row was created.
func (s *SQLStore) AddMember(groupID, userID int) (bool, error) {
	query := s.rebind("INSERT INTO group_memberships (group_id, user_id, joined_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING")
	result, err := s.db.Exec(query, groupID, userID, now())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// RemoveMember reports whether a membership row was deleted.
func (s *SQLStore) RemoveMember(groupID, userID int) (bool, error) {
	query := s.rebind("DELETE FROM group_memberships WHERE group_id = ? AND user_id = ?")
	result, err := s.db.Exec(query, groupID, userID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) IsMember(groupID, userID int) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM group_memberships WHERE group_id = ? AND user_id = ?)")
	err := s.db.QueryRow(query, groupID, userID).Scan(&exists)
	return exists, err
}
