package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repo interface {
	CreateUser(ctx context.Context, user User) (int, error)
	GetUser(ctx context.Context, id int) (User, error)
	GetUserByUid(ctx context.Context, uid string) (User, error)
	// GetUserByPrimaryCalendarEmail resolves the account owning a primary calendar.
	GetUserByPrimaryCalendarEmail(ctx context.Context, email string) (User, error)
	GetUsersWithPrimaryCalendar(ctx context.Context) ([]User, error)
	SetPrimaryCalendar(ctx context.Context, userId int, calendarId int) error
	DeleteUser(ctx context.Context, id int) error
}

type UserRepoImpl struct {
	db *pgxpool.Pool
}

func NewUserRepo(db *pgxpool.Pool) *UserRepoImpl {
	return &UserRepoImpl{db: db}
}

const userColumns = `u.id, u.uid, u.username, u.display_name, COALESCE(u.primary_calendar_id, 0)`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.Id, &u.Uid, &u.Username, &u.DisplayName, &u.PrimaryCalendarId)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("read user: %w", err)
	}
	return u, nil
}

func (u *UserRepoImpl) CreateUser(ctx context.Context, user User) (int, error) {
	query := `INSERT INTO users (uid, username, display_name) VALUES ($1, $2, $3) RETURNING id`
	var id int
	err := u.db.QueryRow(ctx, query, user.Uid, user.Username, user.DisplayName).Scan(&id)
	if err != nil {
		log.Errorf("failed to create user: %v", err)
		return 0, err
	}
	return id, nil
}

func (u *UserRepoImpl) GetUser(ctx context.Context, id int) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`
	return scanUser(u.db.QueryRow(ctx, query, id))
}

func (u *UserRepoImpl) GetUserByUid(ctx context.Context, uid string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.uid = $1`
	return scanUser(u.db.QueryRow(ctx, query, uid))
}

func (u *UserRepoImpl) GetUserByPrimaryCalendarEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users u JOIN calendar c ON c.id = u.primary_calendar_id WHERE c.email = $1`
	return scanUser(u.db.QueryRow(ctx, query, email))
}

func (u *UserRepoImpl) GetUsersWithPrimaryCalendar(ctx context.Context) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.primary_calendar_id IS NOT NULL ORDER BY u.id`
	rows, err := u.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (u *UserRepoImpl) SetPrimaryCalendar(ctx context.Context, userId int, calendarId int) error {
	result, err := u.db.Exec(ctx, `UPDATE users SET primary_calendar_id = $1 WHERE id = $2`, calendarId, userId)
	if err != nil {
		return fmt.Errorf("set primary calendar of user %d: %w", userId, err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (u *UserRepoImpl) DeleteUser(ctx context.Context, id int) error {
	result, err := u.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
