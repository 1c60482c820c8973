package repository

import (
	"github.com/ManuelReschke/TeamPay/app/models"
)

// TeamRepository defines the interface for team-related database operations
type TeamRepository interface {
	Create(team *models.Team) error
	GetByID(id uint) (*models.Team, error)
	GetByJoinCode(code string) (*models.Team, error)
	Update(team *models.Team) error
	UpdateSchedule(team *models.Team) error
	List(offset, limit int) ([]models.Team, error)
	Count() (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Team TeamRepository
}
