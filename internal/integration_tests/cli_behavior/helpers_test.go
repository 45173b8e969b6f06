package integration_tests

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chainHCL is a two-step shell pipeline: raw.txt -> upper.txt -> count.txt.
const chainHCL = `
artifact "raw" { path = "raw.txt" }
artifact "upper" { path = "build/upper.txt" }
artifact "count" { path = "build/count.txt" }

task "uppercase" {
  strategy = "shell"
  inputs   = { src = artifact.raw }
  outputs  = { dst = artifact.upper }
  command  = "mkdir -p $(dirname ${output.dst}) && tr a-z A-Z < ${input.src} > ${output.dst}"
}

task "count" {
  strategy = "shell"
  inputs   = { src = artifact.upper }
  outputs  = { dst = artifact.count }
  command  = "wc -c < ${input.src} | tr -d ' ' > ${output.dst}"
}
`

// writeChain lays out chainHCL with a source older than anything a run
// will produce and returns the workflow directory.
func writeChain(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(chainHCL), 0600))
	raw := filepath.Join(dir, "raw.txt")
	require.NoError(t, os.WriteFile(raw, []byte("hello"), 0600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(raw, past, past))
	return dir
}
