package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminCredentials(t *testing.T) {
	t.Run("missing password", func(t *testing.T) {
		t.Setenv("ADMIN_PASSWORD", "")
		_, _, err := adminCredentials()
		assert.Error(t, err)
	})

	t.Run("blank password", func(t *testing.T) {
		t.Setenv("ADMIN_PASSWORD", "   ")
		_, _, err := adminCredentials()
		assert.Error(t, err)
	})

	t.Run("configured", func(t *testing.T) {
		t.Setenv("ADMIN_USER", "ops")
		t.Setenv("ADMIN_PASSWORD", "s3cret-pass")
		user, password, err := adminCredentials()
		require.NoError(t, err)
		assert.Equal(t, "ops", user)
		assert.Equal(t, "s3cret-pass", password)
	})
}
