package auth

import (
	"context"
	"strconv"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Operator roles carried in the token. Remediations need RoleSupervisor or RoleAdmin.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// Principal is the authenticated caller taken from a verified token.
type Principal struct {
	UserID uint
	Role   string
}

func (p *Principal) Actor() string {
	return strconv.FormatUint(uint64(p.UserID), 10)
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	return p, ok && p != nil
}
