package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezahh107/Matrix2/internal/policy"
)

func TestParseCenterManager_ParsesRepeatableFlags(t *testing.T) {
	overrides, err := parseCenterManager([]string{"10=SCHOOL", " 20 = GENERIC "})
	require.NoError(t, err)
	assert.Equal(t, policy.ChannelSchool, overrides[10])
	assert.Equal(t, policy.ChannelGeneric, overrides[20])
}

func TestParseCenterManager_EmptyInputReturnsNil(t *testing.T) {
	overrides, err := parseCenterManager(nil)
	require.NoError(t, err)
	assert.Nil(t, overrides)
}

func TestParseCenterManager_RejectsMalformedEntry(t *testing.T) {
	_, err := parseCenterManager([]string{"not-a-pair"})
	assert.Error(t, err)
}

func TestParseCenterManager_RejectsNonIntegerCenter(t *testing.T) {
	_, err := parseCenterManager([]string{"abc=SCHOOL"})
	assert.Error(t, err)
}

func TestParseCenterManager_RejectsUnknownChannelTag(t *testing.T) {
	_, err := parseCenterManager([]string{"10=MARS"})
	assert.Error(t, err)
}

func TestIsSQLitePath_RecognizesKnownExtensions(t *testing.T) {
	assert.True(t, isSQLitePath("history.db"))
	assert.True(t, isSQLitePath("HISTORY.SQLITE"))
	assert.True(t, isSQLitePath("history.sqlite3"))
	assert.False(t, isSQLitePath("history.csv"))
}
