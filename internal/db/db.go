package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BuildDSN renders the MySQL DSN, preferring the Cloud SQL unix socket when
// INSTANCE_CONNECTION_NAME is set.
func BuildDSN(cfg *config.Config) string {
	addr := cfg.DBHost
	switch {
	case cfg.InstanceConnectionName != "":
		addr = fmt.Sprintf("unix(/cloudsql/%s)", cfg.InstanceConnectionName)
	case strings.HasPrefix(cfg.DBHost, "tcp("), strings.HasPrefix(cfg.DBHost, "unix("):
	case strings.HasPrefix(cfg.DBHost, "/"):
		addr = fmt.Sprintf("unix(%s)", cfg.DBHost)
	default:
		addr = fmt.Sprintf("tcp(%s:%s)", cfg.DBHost, cfg.DBPort)
	}
	return fmt.Sprintf("%s:%s@%s/%s?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DBUser, cfg.DBPassword, addr, cfg.DBName)
}

func BuildPostgresDSN(cfg *config.Config) string {
	host := cfg.DBHost
	if cfg.InstanceConnectionName != "" {
		host = "/cloudsql/" + cfg.InstanceConnectionName
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
}

func dialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "", "mysql":
		return mysql.Open(BuildDSN(cfg)), nil
	case "postgres":
		return postgres.Open(BuildPostgresDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func Connect(cfg *config.Config) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	gcfg := &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
	db, err := gorm.Open(d, gcfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)

	return db, nil
}

// Migrate creates or updates every table the dispatch engine owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Transporter{},
		&model.Delivery{},
		&model.DeliveryTracking{},
		&model.DeliveryRating{},
		&model.Notification{},
	)
}
