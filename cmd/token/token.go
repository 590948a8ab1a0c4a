package token

import (
	"errors"
	"fmt"
	"io"
	"time"

	"warehouseops/src/auth"
)

// Token mints a bearer token for local testing against a running server.
type Token struct {
	UserID uint
	Role   string
	TTL    time.Duration
	Out    io.Writer
}

func (t *Token) Start() error {
	if t.UserID == 0 {
		return errors.New("user id is required")
	}
	switch t.Role {
	case auth.RoleOperator, auth.RoleSupervisor, auth.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", t.Role)
	}

	v := auth.NewVerifier(auth.GetConfig())
	signed, err := v.Sign(auth.Principal{UserID: t.UserID, Role: t.Role}, t.TTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(t.Out, signed)
	return err
}
