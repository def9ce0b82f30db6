package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/types"
)

func TestParseIdentityParsesTenantAndObject(t *testing.T) {
	tenant, object, err := parseIdentity("42", "doc-1")
	require.NoError(t, err)
	require.Equal(t, types.Tenant(42), tenant)
	require.Equal(t, types.ObjectID("doc-1"), object)
}

func TestParseIdentityRejectsNonNumericTenant(t *testing.T) {
	_, _, err := parseIdentity("not-a-number", "doc-1")
	require.Error(t, err)
}
