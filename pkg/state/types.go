package state

import "path/filepath"

type Paths struct {
	DB        string
	Store     string
	State     string
	Audit     string
	Retention string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:        dbPath,
		Store:     filepath.Join(dbPath, "store"),
		State:     statePath,
		Audit:     filepath.Join(statePath, "audit"),
		Retention: filepath.Join(statePath, "retention"),
	}
}
