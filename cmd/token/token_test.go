package token

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouseops/src/auth"
)

func TestTokenStartMintsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	var out bytes.Buffer

	err := (&Token{UserID: 3, Role: auth.RoleSupervisor, TTL: time.Minute, Out: &out}).Start()
	require.NoError(t, err)

	p, err := auth.NewVerifier(auth.GetConfig()).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, uint(3), p.UserID)
	assert.Equal(t, auth.RoleSupervisor, p.Role)
}

func TestTokenStartValidates(t *testing.T) {
	assert.Error(t, (&Token{Role: auth.RoleAdmin}).Start())
	assert.Error(t, (&Token{UserID: 1, Role: "root"}).Start())
}
