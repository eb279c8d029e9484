package database

import (
	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/config"
)

func InitDatabase(dbConfig *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := NewConnection(dbConfig)
	if err != nil {
		return nil, err
	}
	return db, nil
}
