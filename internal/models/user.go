package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleUser  UserRole = "USER"
)

// SystemActor is recorded as the actor of transitions nobody requested, such
// as lazy trade offer expiry.
const SystemActor = "system"

// User mirrors the identity provider's profile. Only the ban flag drives
// behaviour here.
type User struct {
	ID          string     `db:"id" json:"id"`
	Email       string     `db:"email" json:"email"`
	DisplayName string     `db:"display_name" json:"displayName"`
	BannedAt    *time.Time `db:"banned_at" json:"bannedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// IsBanned reports whether the user has been banned.
func (u *User) IsBanned() bool {
	return u != nil && u.BannedAt != nil
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string     `json:"user_id"`
	Roles  []UserRole `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role.
func (c *JWTClaims) HasRole(role UserRole) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (c *JWTClaims) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Page is a normalised page request.
type Page struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps page and size into the accepted range.
func NormalizePage(page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Page: page, PageSize: size}
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pagination renders the response metadata for total rows.
func (p Page) Pagination(total int) *Pagination {
	return &Pagination{Page: p.Page, PageSize: p.PageSize, TotalCount: total}
}
