package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docsRoot() *cobra.Command {
	root := &cobra.Command{Use: "ferry", RunE: func(*cobra.Command, []string) error { return nil }}
	root.AddCommand(&cobra.Command{Use: "status", Short: "show progress", RunE: func(*cobra.Command, []string) error { return nil }})
	root.AddCommand(newDocsCmd())
	return root
}

func TestGenDocs(t *testing.T) {
	tests := []struct {
		format string
		files  []string
	}{
		{"man", []string{"ferry.1", "ferry-status.1"}},
		{"markdown", []string{"ferry.md", "ferry_status.md"}},
		{"rest", []string{"ferry.rst", "ferry_status.rst"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			root := docsRoot()
			root.SetArgs([]string{"gen-docs", "--dir", dir, "--format", tt.format})
			require.NoError(t, root.Execute())
			for _, f := range tt.files {
				assert.FileExists(t, filepath.Join(dir, f))
			}
			assert.NoFileExists(t, filepath.Join(dir, "ferry_gen-docs.md"), "hidden command is not documented")
		})
	}
}

func TestGenDocsUnknownFormat(t *testing.T) {
	root := docsRoot()
	root.SilenceErrors, root.SilenceUsage = true, true
	root.SetArgs([]string{"gen-docs", "--dir", t.TempDir(), "--format", "pdf"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "man, markdown, rest")
}
