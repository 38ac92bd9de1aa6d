package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"odbcref/internal/core"
)

// ScriptRepo stores named comparison scripts as their source text.
type ScriptRepo struct {
	db *sql.DB
}

func NewScriptRepo(db *sql.DB) *ScriptRepo {
	return &ScriptRepo{db: db}
}

func (r *ScriptRepo) Create(s *core.SavedScript) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := r.db.Exec(`INSERT INTO scripts (slug, description, body, updated_at) VALUES (?, ?, ?, ?)`,
		s.Slug, s.Description, s.Body, s.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

func (r *ScriptRepo) GetBySlug(slug string) (*core.SavedScript, error) {
	var s core.SavedScript
	var desc sql.NullString
	err := r.db.QueryRow(`SELECT id, slug, description, body, updated_at FROM scripts WHERE slug = ?`, slug).
		Scan(&s.ID, &s.Slug, &desc, &s.Body, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("script %q: %w", slug, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.Description = desc.String
	return &s, nil
}

func (r *ScriptRepo) GetAll() ([]core.SavedScript, error) {
	rows, err := r.db.Query(`SELECT id, slug, description, body, updated_at FROM scripts ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scripts []core.SavedScript
	for rows.Next() {
		var s core.SavedScript
		var desc sql.NullString
		if err := rows.Scan(&s.ID, &s.Slug, &desc, &s.Body, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Description = desc.String
		scripts = append(scripts, s)
	}
	return scripts, rows.Err()
}

func (r *ScriptRepo) Update(s *core.SavedScript) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(`UPDATE scripts SET slug=?, description=?, body=?, updated_at=? WHERE id=?`,
		s.Slug, s.Description, s.Body, s.UpdatedAt, s.ID)
	return err
}

func (r *ScriptRepo) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM scripts WHERE id=?`, id)
	return err
}
