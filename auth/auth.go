/*
Package auth issues and checks role-bearing JWTs.

ROLES AND PERMISSIONS:
  admin        everything
  treasurer    ledger:read ledger:write ledger:approve
  secretary    scheduling:read scheduling:write members:write ledger:read ledger:write
  professional scheduling:read

  Handlers never test roles directly; they ask for a Permission and the
  matrix below decides. Secretaries record offerings and expenses as
  pending; only ledger:approve may create them already approved.

TOKENS:
  HS256, claims {sub, role, iat, exp}. An Issuer with an empty secret is
  disabled: Middleware lets every request through as admin (local dev).
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ministerio/gestao-engine/generic"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleTreasurer    Role = "treasurer"
	RoleSecretary    Role = "secretary"
	RoleProfessional Role = "professional"
)

type Permission string

const (
	LedgerRead      Permission = "ledger:read"
	LedgerWrite     Permission = "ledger:write"
	LedgerApprove   Permission = "ledger:approve"
	SchedulingRead  Permission = "scheduling:read"
	SchedulingWrite Permission = "scheduling:write"
	MembersWrite    Permission = "members:write"
	AdminManage     Permission = "admin:manage"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin:        {LedgerRead, LedgerWrite, LedgerApprove, SchedulingRead, SchedulingWrite, MembersWrite, AdminManage},
	RoleTreasurer:    {LedgerRead, LedgerWrite, LedgerApprove},
	RoleSecretary:    {SchedulingRead, SchedulingWrite, MembersWrite, LedgerRead, LedgerWrite},
	RoleProfessional: {SchedulingRead},
}

func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Can reports whether r grants p.
func (r Role) Can(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// =============================================================================
// ISSUER
// =============================================================================

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled is false when no secret is configured.
func (i *Issuer) Enabled() bool { return len(i.secret) > 0 }

// Issue signs a token for subject with role.
func (i *Issuer) Issue(subject string, role Role) (string, error) {
	if !i.Enabled() {
		return "", errors.New("auth disabled: no signing secret")
	}
	if !role.Valid() {
		return "", generic.NewValidationError("role", "oneof", "must be one of: admin treasurer secretary professional")
	}
	now := i.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse validates signature, expiry and role.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrUnauthorized, err)
	}
	if !parsed.Valid || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: invalid token claims", generic.ErrUnauthorized)
	}
	return claims, nil
}
