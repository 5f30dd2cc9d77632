package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("slot 3", From("slot %d", 3))
	assert.Equal("plain", From("plain"))
}

func TestError(t *testing.T) {
	assert := assert.New(t)

	err := Error("kind %v unknown", 7)
	assert.EqualError(err, "kind 7 unknown")
}
