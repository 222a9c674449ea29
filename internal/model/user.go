// internal/model/user.go
package model

const RoleAdmin = "admin"

// User is owned by the identity service; this module only reads it.
type User struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Role       string `db:"role" json:"role"`
	IsVerified bool   `db:"is_verified" json:"is_verified"`
}

// Actor is the authenticated caller of an API operation.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
