// internal/models/user.go
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

type UserRole string

const (
	RoleSolicitante   UserRole = "solicitante"
	RoleAnalista      UserRole = "analista"
	RoleAdministrador UserRole = "administrador"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleSolicitante, RoleAnalista, RoleAdministrador:
		return true
	}
	return false
}

// Roles is the role set of a user. It is stored as a text[] column.
type Roles []UserRole

func (r Roles) Has(role UserRole) bool {
	for _, candidate := range r {
		if candidate == role {
			return true
		}
	}
	return false
}

func (r Roles) HasAny(roles ...UserRole) bool {
	for _, role := range roles {
		if r.Has(role) {
			return true
		}
	}
	return false
}

func (r Roles) Strings() []string {
	out := make([]string, len(r))
	for i, role := range r {
		out[i] = string(role)
	}
	return out
}

// ParseRoles converts raw role names into a Roles set, rejecting unknown names.
func ParseRoles(raw []string) (Roles, error) {
	roles := make(Roles, 0, len(raw))
	for _, name := range raw {
		role := UserRole(name)
		if !role.IsValid() {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		if !roles.Has(role) {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (r Roles) Value() (driver.Value, error) {
	return pq.StringArray(r.Strings()).Value()
}

func (r *Roles) Scan(value interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(value); err != nil {
		return err
	}
	parsed, err := ParseRoles(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	FullName     string     `json:"full_name" gorm:"size:150"`
	Roles        Roles      `json:"roles" gorm:"type:text[];not null"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);not null"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
