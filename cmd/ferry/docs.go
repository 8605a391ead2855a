package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// docGenerators write the documentation tree of root into dir.
var docGenerators = map[string]func(root *cobra.Command, dir string) error{
	"man": func(root *cobra.Command, dir string) error {
		return doc.GenManTree(root, &doc.GenManHeader{
			Title:   "FERRY",
			Section: "1",
			Source:  "ferry " + version,
			Manual:  "ferry manual",
		}, dir)
	},
	"markdown": doc.GenMarkdownTree,
	"rest":     doc.GenReSTTree,
}

func newDocsCmd() *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Write man pages or reference docs for every ferry command",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen, ok := docGenerators[format]
			if !ok {
				return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(docFormats(), ", "))
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			return gen(cmd.Root(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "output format: "+strings.Join(docFormats(), ", "))
	return cmd
}

func docFormats() []string {
	names := make([]string, 0, len(docGenerators))
	for name := range docGenerators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
