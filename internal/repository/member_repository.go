package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"family-tasks/internal/model"
)

// MemberRepository handles CRUD for family members.
type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *model.FamilyMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (r *MemberRepository) FindByID(ctx context.Context, id string) (*model.FamilyMember, error) {
	var member model.FamilyMember
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.FamilyMember, error) {
	var member model.FamilyMember
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// LinkTelegram attaches a chat account to an existing member.
func (r *MemberRepository) LinkTelegram(ctx context.Context, id string, telegramID int64) error {
	res := r.db.WithContext(ctx).Model(&model.FamilyMember{}).
		Where("id = ?", id).
		Update("telegram_id", telegramID)
	if res.Error != nil {
		return fmt.Errorf("link telegram for member %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MemberRepository) ListAll(ctx context.Context) ([]model.FamilyMember, error) {
	var members []model.FamilyMember
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *MemberRepository) Save(ctx context.Context, member *model.FamilyMember) error {
	if err := r.db.WithContext(ctx).Save(member).Error; err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

func (r *MemberRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FamilyMember{})
	if res.Error != nil {
		return fmt.Errorf("delete member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
