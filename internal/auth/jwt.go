package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the caller's role as issued by the identity provider.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
	RoleBusiness Role = "business"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleEmployee, RoleBusiness, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may operate an organization's queue.
func (r Role) IsStaff() bool {
	return r == RoleEmployee || r == RoleBusiness || r == RoleAdmin
}

// Identity is the caller described by a token.
type Identity struct {
	ActorID string
	OrgID   string
	Role    Role
	Phone   string
}

// Claims defines the structured data we store in the JWT
type Claims struct {
	ActorID string `json:"actor_id"`
	OrgID   string `json:"org_id,omitempty"`
	Role    Role   `json:"role"`
	Phone   string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// HolderID returns the identity tickets are held under: the phone when the
// token carries one, otherwise the actor id.
func (c *Claims) HolderID() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.ActorID
}

// CanManage reports whether the caller may operate orgID's queue.
func (c *Claims) CanManage(orgID string) bool {
	if c.Role == RoleAdmin {
		return true
	}
	return c.Role.IsStaff() && c.OrgID != "" && c.OrgID == orgID
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
)

type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secretKey: []byte(secret), ttl: ttl}
}

// GenerateToken creates a new JWT access token
func (tm *TokenManager) GenerateToken(id Identity) (string, error) {
	if !id.Role.IsValid() {
		return "", ErrInvalidRole
	}
	now := time.Now()
	claims := &Claims{
		ActorID: id.ActorID,
		OrgID:   id.OrgID,
		Role:    id.Role,
		Phone:   id.Phone,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			Subject:   id.ActorID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.ActorID == "" || !claims.Role.IsValid() {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
