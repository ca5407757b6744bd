package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service interface {
	GetCurrentUser(ctx context.Context) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id int) (User, error)
	GetUserByUid(ctx context.Context, uid string) (User, error)
	GetUserByPrimaryCalendarEmail(ctx context.Context, email string) (User, error)
	GetUsersWithPrimaryCalendar(ctx context.Context) ([]User, error)
	SetPrimaryCalendar(ctx context.Context, userId int, calendarId int) error
	DeleteUser(ctx context.Context, id int) error
}

type UserServiceImpl struct {
	repo Repo
}

func NewUserService(repo Repo) *UserServiceImpl {
	return &UserServiceImpl{repo: repo}
}

func (u *UserServiceImpl) GetCurrentUser(ctx context.Context) (User, error) {
	userId, err := CurrentId(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return u.GetUser(ctx, userId)
}

func (u *UserServiceImpl) CreateUser(ctx context.Context, user User) (User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return User{}, fmt.Errorf("username is required: %w", ErrUserDataInvalid)
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if user.Uid == "" {
		user.Uid = uuid.NewString()
	}
	userId, err := u.repo.CreateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	user.Id = userId
	return user, nil
}

func (u *UserServiceImpl) GetUser(ctx context.Context, id int) (User, error) {
	return u.repo.GetUser(ctx, id)
}

func (u *UserServiceImpl) GetUserByUid(ctx context.Context, uid string) (User, error) {
	return u.repo.GetUserByUid(ctx, uid)
}

func (u *UserServiceImpl) GetUserByPrimaryCalendarEmail(ctx context.Context, email string) (User, error) {
	return u.repo.GetUserByPrimaryCalendarEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func (u *UserServiceImpl) GetUsersWithPrimaryCalendar(ctx context.Context) ([]User, error) {
	return u.repo.GetUsersWithPrimaryCalendar(ctx)
}

func (u *UserServiceImpl) SetPrimaryCalendar(ctx context.Context, userId int, calendarId int) error {
	return u.repo.SetPrimaryCalendar(ctx, userId, calendarId)
}

func (u *UserServiceImpl) DeleteUser(ctx context.Context, id int) error {
	return u.repo.DeleteUser(ctx, id)
}
