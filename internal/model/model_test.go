package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleDoctor, RoleNurse, RolePatient} {
		require.True(t, r.Valid(), r)
	}
	require.False(t, Role("WIZARD").Valid())
	require.False(t, Role("").Valid())
	require.False(t, Role("patient").Valid(), "roles are case-sensitive")
}

func TestPendingAuth_Expired(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := PendingAuth{IssuedAt: issued}
	window := 15 * time.Minute

	require.False(t, p.Expired(issued.Add(14*time.Minute), window))
	require.False(t, p.Expired(issued.Add(window), window), "boundary is inclusive")
	require.True(t, p.Expired(issued.Add(window+time.Second), window))
}
