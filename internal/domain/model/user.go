package model

import (
	"time"
)

type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	HashedPassword   string    `json:"-"` // Not exposed
	CodeforcesHandle *string   `json:"codeforces_handle,omitempty"`
	Rating           int       `json:"rating"`
	Wins             int       `json:"wins"`
	Losses           int       `json:"losses"`
	CreatedAt        time.Time `json:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}
