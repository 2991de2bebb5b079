package loader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraitsura/flowtree/pkg/loader"
	"github.com/kraitsura/flowtree/pkg/model"
)

func TestLoadSubtree(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, Value: 1, LeftChildID: model.Ref(2)},
		{ID: 2, Value: 2, RightChildID: model.Ref(3)},
		{ID: 3, Value: 3, LeftChildID: model.Ref(2)}, // loops back
		{ID: 4, Value: 4, ParentID: model.Ref(2)},
		{ID: 5, Value: 5, ParentID: model.Ref(9)},
	}

	tree, err := loader.LoadSubtree(2, nodes)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tree.Root.ID)
	assert.Equal(t, 3, tree.TotalCount())

	var ids []int64
	for _, n := range tree.Descendants {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []int64{3, 4}, ids)
	assert.Empty(t, tree.External)

	out := tree.Nodes()
	require.Len(t, out, 3)
	assert.Equal(t, int64(3), *out[0].RightChildID)
	assert.Nil(t, out[0].ParentID)
}

func TestLoadSubtreeExternalRefs(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, Value: 1, LeftChildID: model.Ref(2), RightChildID: model.Ref(3)},
		{ID: 2, Value: 2, ParentID: model.Ref(1), RightChildID: model.Ref(3)},
		{ID: 3, Value: 3},
	}
	tree, err := loader.LoadSubtree(2, nodes)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.TotalCount())
	assert.Empty(t, tree.External)

	nodes[2].ParentID = model.Ref(1)
	tree, err = loader.LoadSubtree(2, nodes)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, tree.External)
	for _, n := range tree.Nodes() {
		assert.Nil(t, n.ParentID)
	}
}

func TestLoadSubtreeMissingRoot(t *testing.T) {
	_, err := loader.LoadSubtree(7, nil)
	assert.Error(t, err)
}
