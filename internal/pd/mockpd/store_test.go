package mockpd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	regionpkg "nyxstore/internal/region"
)

func TestOpenPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(dir, 10)
	require.NoError(t, err)
	left := threePeerRegion(1, "", "m")
	right := threePeerRegion(2, "m", "")
	require.NoError(t, c.ReportSplit(ctx, left, right))
	resp, err := c.AskSplit(ctx, left)
	require.NoError(t, err)
	assert.Equal(t, regionpkg.ID(10), resp.NewRegionID)
	require.NoError(t, c.PutRegion(threePeerRegion(3, "z", "")))
	require.NoError(t, c.RemoveRegion(3))
	require.NoError(t, c.Close())

	reopened, err := Open(dir, 10)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRegionByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("m"), got.Range.Start)

	missing, err := reopened.GetRegionByID(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byKey, ok := reopened.RegionByKey([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, regionpkg.ID(1), byKey.ID)

	resp, err = reopened.AskSplit(ctx, regionpkg.Region{ID: 2})
	require.NoError(t, err)
	assert.Equal(t, regionpkg.ID(14), resp.NewRegionID)
}

func TestOpenLocksDirectory(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 0)
	require.NoError(t, err)

	_, err = Open(dir, 0)
	assert.ErrorIs(t, err, ErrDirInUse)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	again, err := Open(dir, 0)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestOpenRejectsEmptyDir(t *testing.T) {
	_, err := Open("", 0)
	assert.Error(t, err)
}
