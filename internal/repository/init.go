package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/internal/models"
)

type Repositories struct {
	ProfileRepository        ProfileRepository
	SmtpCredentialRepository SmtpCredentialRepository
	QueueItemRepository      QueueItemRepository
	SendHistoryRepository    SendHistoryRepository
	JobRepository            JobRepository
	EmailTemplateRepository  EmailTemplateRepository
	RadarRepository          RadarRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ProfileRepository:        NewProfileRepository(db),
		SmtpCredentialRepository: NewSmtpCredentialRepository(db),
		QueueItemRepository:      NewQueueItemRepository(db),
		SendHistoryRepository:    NewSendHistoryRepository(db),
		JobRepository:            NewJobRepository(db),
		EmailTemplateRepository:  NewEmailTemplateRepository(db),
		RadarRepository:          NewRadarRepository(db),
	}
}

// AllModels lists every table the service owns, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.SmtpCredential{},
		&models.PublicJob{},
		&models.ManualJob{},
		&models.EmailTemplate{},
		&models.QueueItem{},
		&models.SendHistoryEntry{},
		&models.RadarProfile{},
		&models.RadarMatchedJob{},
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDb, err := db.DB()
	if err != nil {
		return err
	}

	sqlDb.SetMaxOpenConns(5)

	err = db.AutoMigrate(AllModels()...)

	if dbConfig != nil {
		if dbConfig.MaxIdleConn > 0 {
			sqlDb.SetMaxIdleConns(dbConfig.MaxIdleConn)
		}
		if dbConfig.MaxConn > 0 {
			sqlDb.SetMaxOpenConns(dbConfig.MaxConn)
		}
		if dbConfig.ConnMaxLifetime > 0 {
			sqlDb.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
		}
	}

	return err
}
