package loader_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraitsura/flowtree/pkg/loader"
	"github.com/kraitsura/flowtree/pkg/model"
	"github.com/kraitsura/flowtree/pkg/store"
)

func TestReadNodesSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1,"value":10,"name":"root","type":"input","parent_id":null,"left_child_id":2,"right_child_id":null}`,
		``,
		`{not json`,
		`{"id":2,"value":20,"parent_id":1,"left_child_id":null,"right_child_id":null}`,
	}, "\n")

	nodes, skipped, err := loader.ReadNodes(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, nodes, 2)
	assert.Equal(t, "root", nodes[0].Name)
	assert.Equal(t, model.TypeInput, nodes[0].Type)
	assert.Equal(t, int64(2), *nodes[0].LeftChildID)
	assert.Nil(t, nodes[0].RightChildID)
	assert.Equal(t, int64(1), *nodes[1].ParentID)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.jsonl")
	in := []model.Node{
		{ID: 1, Value: 5, Name: "a", LeftChildID: model.Ref(2)},
		{ID: 2, Value: 6, ParentID: model.Ref(1)},
	}
	require.NoError(t, loader.SaveNodesToFile(path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))

	out, err := loader.LoadNodesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadNodesFromFileMissing(t *testing.T) {
	_, err := loader.LoadNodesFromFile(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no node export found")
}

func openStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "nodes.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImportNodesRemapsIDs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	// occupy ids so the remap is visible
	v := int64(0)
	_, err := s.Create(ctx, model.NodeFields{Value: &v})
	require.NoError(t, err)

	res, err := loader.ImportNodes(ctx, s, []model.Node{
		{ID: 10, Value: 1, Name: "top", Type: model.TypeInput, LeftChildID: model.Ref(20), RightChildID: model.Ref(30)},
		{ID: 20, Value: 2, ParentID: model.Ref(10)},
		{ID: 30, Value: 3, ParentID: model.Ref(10), LeftChildID: model.Ref(99)},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Linked)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.IDs, 3)

	top, err := s.Get(ctx, res.IDs[10])
	require.NoError(t, err)
	assert.Equal(t, "top", top.Name)
	assert.Equal(t, model.TypeInput, top.Type)
	assert.Equal(t, res.IDs[20], *top.LeftChildID)
	assert.Equal(t, res.IDs[30], *top.RightChildID)

	third, err := s.Get(ctx, res.IDs[30])
	require.NoError(t, err)
	assert.Equal(t, res.IDs[10], *third.ParentID)
	assert.Nil(t, third.LeftChildID)
}

func TestImportNodesCollectsErrors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	res, err := loader.ImportNodes(ctx, s, []model.Node{
		{ID: 1, Value: 1, LeftChildID: model.Ref(2), RightChildID: model.Ref(2)},
		{ID: 2, Value: 2},
		{ID: 2, Value: 3},
		{ID: 3, Value: 4, Type: "bogus"},
	})
	require.NoError(t, err)
	require.Len(t, res.Errors, 3)

	stages := map[string]int{}
	for _, e := range res.Errors {
		stages[e.Stage]++
		assert.True(t, errors.Is(e, store.ErrValidation) || e.Stage == "create", e.Error())
	}
	assert.Equal(t, 2, stages["create"])
	assert.Equal(t, 1, stages["link"])
	assert.Len(t, res.IDs, 2)
}

func TestImportNodesHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loader.ImportNodes(ctx, openStore(t), []model.Node{{ID: 1, Value: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}
