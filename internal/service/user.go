package service

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UpsertUserInput 对应用户资料同步接口的请求体。
type UpsertUserInput struct {
	UserID string
	Name   string
	Avatar string
}

// UpsertUser 按外部 userId 创建或更新用户资料。
func (s *Store) UpsertUser(ctx context.Context, in UpsertUserInput) (*models.User, error) {
	if in.UserID == "" || in.Name == "" {
		return nil, fmt.Errorf("upsert user: %w: userId and name are required", ErrValidation)
	}
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", in.UserID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{ID: uuid.NewString(), UserID: in.UserID, Name: in.Name, Avatar: in.Avatar}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		user.Name = in.Name
		user.Avatar = in.Avatar
		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, translate("upsert user", err)
	}
	return &user, nil
}

// FindUsersExcept 返回除 id 以外的全部用户，作为私聊候选。
func (s *Store) FindUsersExcept(ctx context.Context, id string) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("id <> ?", id).Order("created_at, id").Find(&users).Error
	if err != nil {
		return nil, translate("find users", err)
	}
	return users, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate("find user", err)
	}
	return &user, nil
}
