package integration_tests

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test for: artifacts and tasks may be spread over several files and
// directories; relative paths resolve against the declaring file.
func TestHCLFeatures_UnifiedLoadingAcrossFiles(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"data/artifacts.hcl": `
artifact "words" { path = "words.txt" }
artifact "sorted" { path = "../out/sorted.txt" }
`,
		"data/words.txt": "pear\napple\n",
		"tasks/sort.hcl": `
engine { workers = 2 }

task "sort" {
  strategy = "shell"
  inputs   = { src = artifact.words }
  outputs  = { dst = artifact.sorted }
  command  = "mkdir -p $(dirname ${output.dst}) && sort ${input.src} > ${output.dst}"
}
`,
		"tasks/.hidden/ignored.hcl": `this is not hcl`,
	})

	// --- Act ---
	testApp := refresh(t, filepath.Join(root, "data"), filepath.Join(root, "tasks"))

	// --- Assert ---
	assert.Equal(t, []string{"task://sort"}, testApp.LastReport().Done())
	assert.Equal(t, "apple\npear\n", readFile(t, filepath.Join(root, "out", "sorted.txt")))
}
