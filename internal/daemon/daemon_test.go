package daemon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}
