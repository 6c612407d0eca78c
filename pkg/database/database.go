package database

import (
	"fmt"
	"log"

	"proofly_backend/internal/config"
	"proofly_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true,
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.TaskTemplate{},
		&model.TaskVariant{},
		&model.Submission{},
		&model.ReviewDecision{},
		&model.TrustScore{},
		&model.TrustHistoryEntry{},
		&model.DefenseSession{},
		&model.DefenseQuestion{},
		&model.SkillReceipt{},
		&model.ReceiptAmendment{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	return db, nil
}
