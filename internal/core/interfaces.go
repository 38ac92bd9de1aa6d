package core

// ProfileRepository defines storage operations for data source profiles
type ProfileRepository interface {
	Create(p *Profile) error
	GetAll() ([]Profile, error)
	GetByID(id int64) (*Profile, error)
	GetByName(name string) (*Profile, error)
	Update(p *Profile) error
	Delete(id int64) error
}

// ScriptRepository defines storage operations for saved scripts
type ScriptRepository interface {
	Create(s *SavedScript) error
	GetAll() ([]SavedScript, error)
	GetBySlug(slug string) (*SavedScript, error)
	Update(s *SavedScript) error
	Delete(id int64) error
}

// RunRepository defines storage operations for the run history
type RunRepository interface {
	Create(run *Run) error
	GetRecent(limit int) ([]Run, error)
	GetByID(id int64) (*Run, error)
}

// ApiKeyRepository defines storage operations for API keys
type ApiKeyRepository interface {
	Create(key *ApiKey) error
	List() ([]ApiKey, error)
	GetByHash(hash string) (*ApiKey, error)
	Revoke(id int64) error
	UpdateLastUsed(id int64) error
}
