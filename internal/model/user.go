package model

import (
	"time"
)

type UserRole string

const (
	Student   UserRole = "student"
	Reviewer  UserRole = "reviewer"
	Recruiter UserRole = "recruiter"
	Admin     UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name            string    `gorm:"size:100;not null" json:"name"`
	Email           string    `gorm:"size:100;unique;not null" json:"email"`
	Password        string    `gorm:"size:100;not null" json:"-"`
	Role            UserRole  `gorm:"type:enum('student','reviewer','recruiter','admin');default:'student'" json:"role"`
	Avatar          string    `gorm:"size:255" json:"avatar"`
	Bio             string    `gorm:"size:500" json:"bio"`
	PublicPortfolio bool      `gorm:"default:true" json:"publicPortfolio"`
	Disabled        bool      `gorm:"default:false" json:"disabled"`
	LastLogin       time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastLogin"`
	LastSeen        time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
