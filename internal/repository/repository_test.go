package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepositoriesRequirePool(t *testing.T) {
	subjects, err := NewSubjectRepository(nil)
	assert.ErrorIs(t, err, ErrPoolRequired)
	assert.Nil(t, subjects)

	sessions, err := NewSessionRepository(nil)
	assert.ErrorIs(t, err, ErrPoolRequired)
	assert.Nil(t, sessions)
}
