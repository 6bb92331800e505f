package model

import "time"

// Roles recognised by the API.  Customers do not have accounts; only
// platform admins and ground owners sign in.
const (
	RoleAdmin = "ADMIN"
	RoleOwner = "OWNER"
)

// User represents an application user record as stored in the `users`
// table.  The json tags are omitted here because these structs are
// used internally; handlers define their own response types.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – ADMIN or OWNER.
//	IsActive     – whether the account is active.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
