package membership

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TeamPay/app/models"
)

// Update is the set of fields a transition writes. Status is always written;
// nil timestamps are left untouched.
type Update struct {
	Status     string
	NextDueAt  *time.Time
	LastPaidAt *time.Time
	CanceledAt *time.Time
}

// Repository provides the DB operations used by the status engine.
type Repository interface {
	GetTeam(ctx context.Context, id uint) (*models.Team, error)
	GetTeamByJoinCode(ctx context.Context, code string) (*models.Team, error)
	GetMembership(ctx context.Context, id uint) (*models.Membership, error)
	FindMembershipByEmail(ctx context.Context, teamID uint, email string) (*models.Membership, error)
	CreateMembership(ctx context.Context, m *models.Membership) error
	ListMembershipsByTeam(ctx context.Context, teamID uint) ([]models.Membership, error)
	// ListSweepCandidates pages through active and due memberships ordered by id.
	ListSweepCandidates(ctx context.Context, afterID uint, limit int) ([]models.Membership, error)
	// CompareAndSwap applies u only if the row still has the expected status
	// and version, bumping the version. It returns ErrStaleWrite otherwise.
	CompareAndSwap(ctx context.Context, id uint, expectStatus string, expectVersion uint64, u Update) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a membership repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetTeam(ctx context.Context, id uint) (*models.Team, error) {
	var t models.Team
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *gormRepository) GetTeamByJoinCode(ctx context.Context, code string) (*models.Team, error) {
	var t models.Team
	if err := r.db.WithContext(ctx).Where("join_code = ?", code).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *gormRepository) GetMembership(ctx context.Context, id uint) (*models.Membership, error) {
	var m models.Membership
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *gormRepository) FindMembershipByEmail(ctx context.Context, teamID uint, email string) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND player_email = ?", teamID, email).
		First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *gormRepository) CreateMembership(ctx context.Context, m *models.Membership) error {
	err := r.db.WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyMember
	}
	return err
}

func (r *gormRepository) ListMembershipsByTeam(ctx context.Context, teamID uint) ([]models.Membership, error) {
	var list []models.Membership
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *gormRepository) ListSweepCandidates(ctx context.Context, afterID uint, limit int) ([]models.Membership, error) {
	var list []models.Membership
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.MembershipStatusActive, models.MembershipStatusDue}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *gormRepository) CompareAndSwap(ctx context.Context, id uint, expectStatus string, expectVersion uint64, u Update) error {
	updates := map[string]interface{}{
		"status":  u.Status,
		"version": gorm.Expr("version + 1"),
	}
	if u.NextDueAt != nil {
		updates["next_due_at"] = u.NextDueAt.UTC()
	}
	if u.LastPaidAt != nil {
		updates["last_paid_at"] = u.LastPaidAt.UTC()
	}
	if u.CanceledAt != nil {
		updates["canceled_at"] = u.CanceledAt.UTC()
	}

	tx := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND status = ? AND version = ?", id, expectStatus, expectVersion).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
