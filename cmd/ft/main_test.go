package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraitsura/flowtree/pkg/config"
)

type cli struct {
	t      *testing.T
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvDB, filepath.Join(dir, "nodes.db"))
	t.Setenv(config.EnvStateBackend, config.StateMemory)
	t.Setenv(config.EnvWorkspace, "")
	return &cli{t: t, config: filepath.Join(dir, "absent.yaml")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", c.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, strings.Join(args, " "))
	return out
}

func TestAddTreeDiagram(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, "#1: root (10)\n", c.must("add", "--value", "10", "--name", "root", "--type", "input"))
	assert.Equal(t, "#2: node 2 (20)\n", c.must("add", "--value", "20", "--parent", "1"))
	c.must("set", "1", "--left", "2")

	tree := c.must("tree", "--ascii")
	assert.Equal(t, "▾ #1 10 root (input)\n|-[L] · #2 20\n`-[R] empty\n", tree)

	code := c.must("diagram")
	assert.Contains(t, code, "  n1 -->|L| n2")
	assert.NotContains(t, code, "  n1 --> n2")
	assert.True(t, strings.HasPrefix(code, "graph TD\n"))

	lr := c.must("diagram", "-d", "lr")
	assert.True(t, strings.HasPrefix(lr, "graph LR\n"))
}

func TestEmptyWorkspace(t *testing.T) {
	c := newCLI(t)
	assert.Equal(t, emptyTreeMessage+"\n", c.must("tree"))
	assert.Equal(t, "graph TD\n  empty[\"No nodes yet\"]\n", c.must("diagram"))
}

func TestSetClearsAndValidates(t *testing.T) {
	c := newCLI(t)
	c.must("add", "--value", "1", "--name", "a", "--type", "process")
	c.must("add", "--value", "2", "--parent", "1")

	assert.Equal(t, "#1: node 1 (1)\n", c.must("set", "1", "--name", ""))
	assert.Equal(t, "#2: node 2 (2)\n", c.must("set", "#2", "--parent", "none"))

	_, err := c.run("set", "1", "--type", "sink")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type must be")

	_, err = c.run("set", "1", "--left", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node cannot reference itself")

	_, err = c.run("set", "9", "--value", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = c.run("add", "--value", "x")
	require.Error(t, err)
}

func TestExportImportAcrossWorkspaces(t *testing.T) {
	c := newCLI(t)
	c.must("add", "--value", "1", "--name", "top")
	c.must("add", "--value", "2", "--parent", "1")
	c.must("set", "1", "--right", "2")

	file := filepath.Join(t.TempDir(), "nodes.jsonl")
	c.must("export", file)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	out := c.must("-w", "copy", "import", file)
	assert.Equal(t, "imported 2 of 2 nodes, linked 2, dropped 0 references\n", out)

	// the copy lives in its own workspace with fresh ids
	tree := c.must("-w", "copy", "tree", "--ascii")
	assert.Contains(t, tree, "top")
	assert.Contains(t, tree, "`-[R] · #4 2")

	sub := c.must("export", "--root", "2")
	assert.Equal(t, 1, strings.Count(sub, "\n"))
	assert.Contains(t, sub, `"parent_id":null`)
}

func TestRmAndDoctor(t *testing.T) {
	c := newCLI(t)
	c.must("add", "--value", "1")
	c.must("add", "--value", "2", "--parent", "1")
	c.must("set", "1", "--left", "2")

	assert.Contains(t, c.must("doctor"), "healthy")

	assert.Equal(t, "deleted #2\n", c.must("rm", "2"))
	tree := c.must("tree", "--ascii")
	assert.NotContains(t, tree, "#2")

	_, err := c.run("rm", "2")
	assert.Error(t, err)

	out := c.must("doctor", "--json")
	assert.Contains(t, out, `"health_level": "healthy"`)
}

func TestSnapshotCommand(t *testing.T) {
	c := newCLI(t)
	c.must("add", "--value", "5", "--name", "only")

	path := filepath.Join(t.TempDir(), "tree.svg")
	c.must("snapshot", path, "--all")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestRemoteRejectedForServe(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("--remote", "http://127.0.0.1:1", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local database")
}
