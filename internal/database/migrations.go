package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/taskpulse/internal/models"
)

// schema lists tables in dependency order: comments reference tasks, tasks reference users.
var schema = []any{
	&models.User{},
	&models.Task{},
	&models.Comment{},
}

// AutoMigrate creates or updates every table, naming the model that failed.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	for _, model := range schema {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}
