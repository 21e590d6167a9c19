package vvfat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/vvfat/fat"
)

func TestPendingCommits__Drop(t *testing.T) {
	commits := newPendingCommits(4, 100)
	for _, cluster := range []fat.ClusterID{7, 3, 50} {
		require.NoError(t, commits.add(cluster, []byte{byte(cluster)}))
	}

	require.NoError(t, commits.drop(3))
	assert.False(t, commits.has(3))
	assert.Nil(t, commits.get(3))
	assert.Equal(t, []fat.ClusterID{7, 50}, commits.clusters())
	assert.Equal(t, []byte{50}, commits.get(50))

	// Dropping a cluster with nothing buffered is fine.
	assert.NoError(t, commits.drop(3))
	assert.NoError(t, commits.drop(99))
	assert.Equal(t, 2, commits.Len())
}
