package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gameshelf/backend/internal/logging"
	"gameshelf/backend/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DefaultConsoles are created on first start so the catalogue is usable.
var DefaultConsoles = []string{
	"PC", "PlayStation 5", "PlayStation 4", "Xbox Series X|S", "Xbox One",
	"Nintendo Switch", "Nintendo 3DS", "Wii U", "Game Boy Advance", "Retro",
}

// Connect opens the PostgreSQL connection, runs migrations and seeds the
// console list.
func Connect(dsn string) error {
	db, err := Open(postgres.Open(dsn))
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.Logger().Info().Msg("Database connection established.")

	if err := Migrate(db); err != nil {
		return err
	}
	logging.Logger().Info().Msg("Database migrated successfully.")

	if err := SeedConsoles(context.Background(), db, DefaultConsoles); err != nil {
		return err
	}

	DB = db
	return nil
}

// Open opens a GORM handle on any dialector with the service's GORM settings.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(logging.Writer(zerolog.WarnLevel), "", 0),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// SeedConsoles inserts the named consoles, skipping any that already exist.
func SeedConsoles(ctx context.Context, db *gorm.DB, names []string) error {
	if len(names) == 0 {
		return nil
	}
	consoles := make([]models.Console, 0, len(names))
	for _, name := range names {
		consoles = append(consoles, models.Console{Name: name})
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&consoles).Error
	if err != nil {
		return fmt.Errorf("seed consoles: %w", err)
	}
	return nil
}

// Ping checks that the database answers.
func Ping(ctx context.Context) error {
	if DB == nil {
		return errors.New("database not connected")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
