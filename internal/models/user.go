package models

import "time"

// Principal roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is a user or admin identity capable of owning an Account.
type Principal struct {
	ID        string    `json:"id" example:"3f1c1e9a-6a63-4c7e-9a0e-2f0c3b1f5d11"` // Principal ID
	Username  string    `json:"username" example:"student@campus.edu"`             // Login email
	FirstName string    `json:"firstName" example:"Asha"`                          // First name
	LastName  string    `json:"lastName" example:"Rao"`                            // Last name
	Role      string    `json:"role" example:"user"`                               // user or admin
	CreatedAt time.Time `json:"createdAt"`
}
