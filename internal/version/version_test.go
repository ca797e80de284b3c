package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	s := String("train")
	assert.True(t, strings.HasPrefix(s, "train "+Version))
	assert.Contains(t, s, GitCommit)
}
