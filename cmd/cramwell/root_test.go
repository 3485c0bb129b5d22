package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ingest", "extract", "ask", "generate", "invalidate", "purge", "worker", "mcp"} {
		assert.Contains(t, names, want)
	}
}

func TestNotebookFlagIsRequired(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ask", "what is a monad"})
	root.SetOut(new(discard))
	root.SetErr(new(discard))

	err := root.Execute()
	assert.ErrorContains(t, err, "notebook")
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
