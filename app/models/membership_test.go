package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestMembershipDateColumns(t *testing.T) {
	s, err := schema.Parse(&Membership{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	// Manager overrides can lie past 2038, which a MySQL TIMESTAMP cannot hold.
	for _, name := range []string{"NextDueAt", "LastPaidAt", "CanceledAt"} {
		field := s.LookUpField(name)
		require.NotNil(t, field, name)
		assert.Equal(t, schema.DataType("datetime"), field.DataType, name)
	}
}
