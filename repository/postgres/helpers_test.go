package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageLimit(t *testing.T) {
	assert.Nil(t, pageLimit(0))
	assert.Nil(t, pageLimit(-1))
	assert.Equal(t, int64(20), pageLimit(20))
	assert.Equal(t, int64(500), pageLimit(500))
}
