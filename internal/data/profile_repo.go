package data

import (
	"database/sql"
	"errors"
	"fmt"

	"odbcref/internal/core"
)

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

const profileColumns = `id, name, driver, connection_string_enc, is_active`

func (r *ProfileRepo) Create(p *core.Profile) error {
	res, err := r.db.Exec(`INSERT INTO profiles (name, driver, connection_string_enc, is_active) VALUES (?, ?, ?, ?)`,
		p.Name, p.Driver, p.ConnectionStringEnc, p.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *ProfileRepo) GetAll() ([]core.Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []core.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (r *ProfileRepo) GetByID(id int64) (*core.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", id, core.ErrNotFound)
	}
	return p, err
}

func (r *ProfileRepo) GetByName(name string) (*core.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %q: %w", name, core.ErrNotFound)
	}
	return p, err
}

func (r *ProfileRepo) Update(p *core.Profile) error {
	_, err := r.db.Exec(`UPDATE profiles SET name=?, driver=?, connection_string_enc=?, is_active=? WHERE id=?`,
		p.Name, p.Driver, p.ConnectionStringEnc, p.IsActive, p.ID)
	return err
}

func (r *ProfileRepo) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM profiles WHERE id=?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*core.Profile, error) {
	var p core.Profile
	// SQLite stores booleans as integers (0 or 1)
	var isActive int
	if err := row.Scan(&p.ID, &p.Name, &p.Driver, &p.ConnectionStringEnc, &isActive); err != nil {
		return nil, err
	}
	p.IsActive = isActive == 1
	return &p, nil
}
