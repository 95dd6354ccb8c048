package database

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/huntyio/membership/app/models"
	"github.com/huntyio/membership/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var (
	DB *gorm.DB
	mu sync.RWMutex
)

// Dialector picks the gorm driver for the configured database
func Dialector(cfg config.Database) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "mysql":
		// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		return mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), nil
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

// Setup connects with retries and migrates the tables this service owns.
// users_master and huntys_profile belong to the identity service and are only read.
func Setup(cfg config.Database) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err == nil {
			if err = Migrate(db); err != nil {
				return nil, err
			}
			SetDB(db)
			return db, nil
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// Migrate creates or updates the owned tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Payment{},
		&models.UserSubscription{},
		&models.TreliWebhookEvent{},
	)
}

// SetDB replaces the shared handle
func SetDB(db *gorm.DB) {
	mu.Lock()
	defer mu.Unlock()
	DB = db
}

// GetDB returns the shared handle, nil before Setup
func GetDB() *gorm.DB {
	mu.RLock()
	defer mu.RUnlock()
	return DB
}

// Ping checks the underlying connection pool
func Ping() error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
