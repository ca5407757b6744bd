package user

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserDataInvalid = errors.New("invalid user data")
)

type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
	// PrimaryCalendarId is 0 until the first sync configures the account's primary calendar.
	PrimaryCalendarId int
}

func (u User) HasPrimaryCalendar() bool {
	return u.PrimaryCalendarId != 0
}
