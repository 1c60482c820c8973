package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/TeamPay/app/models"
)

// teamRepository implements the TeamRepository interface
type teamRepository struct {
	db *gorm.DB
}

// NewTeamRepository creates a new team repository instance
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &teamRepository{db: db}
}

// Create creates a new team in the database
func (r *teamRepository) Create(team *models.Team) error {
	return r.db.Create(team).Error
}

// GetByID retrieves a team by its ID
func (r *teamRepository) GetByID(id uint) (*models.Team, error) {
	var team models.Team
	err := r.db.First(&team, id).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// GetByJoinCode retrieves a team by the code of its join link
func (r *teamRepository) GetByJoinCode(code string) (*models.Team, error) {
	var team models.Team
	err := r.db.Where("join_code = ?", code).First(&team).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// Update saves all fields of an existing team
func (r *teamRepository) Update(team *models.Team) error {
	return r.db.Save(team).Error
}

// UpdateSchedule saves the team and moves its non-canceled memberships onto
// the new billing interval in the same transaction, so their stored interval
// always matches the team anchor.
func (r *teamRepository) UpdateSchedule(team *models.Team) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(team).Error; err != nil {
			return err
		}
		return tx.Model(&models.Membership{}).
			Where("team_id = ? AND status <> ?", team.ID, models.MembershipStatusCanceled).
			Update("billing_interval", team.BillingInterval).Error
	})
}

// List retrieves teams with pagination, newest first
func (r *teamRepository) List(offset, limit int) ([]models.Team, error) {
	var teams []models.Team
	err := r.db.Order("id DESC").Offset(offset).Limit(limit).Find(&teams).Error
	return teams, err
}

// Count returns the total number of teams
func (r *teamRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Team{}).Count(&count).Error
	return count, err
}
