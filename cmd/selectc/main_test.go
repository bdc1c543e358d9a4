package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtures = `
tables:
  - name: t
    primary_key: [a]
    columns:
      - {name: a, type: INTEGER}
      - {name: b, type: TEXT}
    rows:
      - [1, "x"]
      - [2, "y"]
      - [3, null]
views:
  - name: v
    query: SELECT a FROM t WHERE a > 1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "selectc")
	require.NoError(t, err)
	return dir
}

func TestRunQuery(t *testing.T) {
	require := require.New(t)
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	path := writeFile(t, dir, "fixtures.yml", fixtures)

	var stdout, stderr bytes.Buffer
	code := run(
		[]string{"-fixtures", path, "-stats", "-q", "SELECT a, b FROM t ORDER BY a DESC"},
		strings.NewReader(""), &stdout, &stderr,
	)
	require.Equal(0, code, stderr.String())

	out := stdout.String()
	require.Contains(out, "NULL")
	require.Contains(out, "| a |")
	require.True(strings.Index(out, "3") < strings.Index(out, "| 1 |"))
	require.Contains(out, "3 rows")
}

func TestRunStdin(t *testing.T) {
	require := require.New(t)
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	path := writeFile(t, dir, "fixtures.yml", fixtures)
	input := `
-- views are loaded from the fixtures
SELECT count(*) AS n
FROM v;
SELECT nope FROM t;
`

	var stdout, stderr bytes.Buffer
	code := run([]string{"-fixtures", path}, strings.NewReader(input), &stdout, &stderr)
	require.Equal(1, code)
	require.Contains(stdout.String(), "| 2 |")
	require.Contains(stderr.String(), "Error:")
}

func TestRunExplain(t *testing.T) {
	require := require.New(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-explain", "-q", "SELECT 1"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(0, code, stderr.String())
	require.Contains(stdout.String(), "Halt")
	require.Contains(stdout.String(), "ResultRow")
}

func TestRunConfig(t *testing.T) {
	require := require.New(t)
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	cfg := writeFile(t, dir, "config.yml", "max_columns: 1\n")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", cfg, "-q", "SELECT 1, 2"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(1, code)
	require.Contains(stderr.String(), "Error:")

	cfg = writeFile(t, dir, "debug.yml", "debug: true\n")
	stdout.Reset()
	stderr.Reset()
	code = run([]string{"-config", cfg, "-q", "SELECT 1"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(0, code)
	require.Contains(stderr.String(), "select compiled")
}

func TestRunBadFlags(t *testing.T) {
	require := require.New(t)

	var stdout, stderr bytes.Buffer
	require.Equal(2, run([]string{"-nope"}, strings.NewReader(""), &stdout, &stderr))
	require.Equal(2, run([]string{"-log-level", "loud", "-q", "SELECT 1"}, strings.NewReader(""), &stdout, &stderr))
	require.Equal(0, run([]string{"-h"}, strings.NewReader(""), &stdout, &stderr))
	require.Contains(stderr.String(), "Usage: selectc")
}

func TestReadQueries(t *testing.T) {
	require := require.New(t)

	queries, err := readQueries(strings.NewReader("SELECT 1;\n-- skip\nSELECT\n2;\nSELECT 3"))
	require.NoError(err)
	require.Equal([]string{"SELECT 1;", "SELECT 2;", "SELECT 3"}, queries)
}
