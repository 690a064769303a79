package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmbiguousError(t *testing.T) {
	err := &AmbiguousError{Kind: "clinical indication", Selector: "R693.1", Matches: 2}

	assert.Contains(t, err.Error(), "R693.1")
	assert.Contains(t, err.Error(), "use the database id")
	assert.True(t, IsAmbiguous(err))
	assert.True(t, IsAmbiguous(fmt.Errorf("resolving: %w", err)))
	assert.False(t, IsAmbiguous(ErrNotFound))
}
