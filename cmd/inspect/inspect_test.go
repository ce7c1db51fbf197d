package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
interfaces:
  - name: IShape
    parent: IDispatch
    iid: 3e7b1f0a-8c24-4d6e-a1f9-5b0c2d7e9a01
    methods:
      - name: Area
        vtid: 7
        return: {code: double, index: 0}
      - name: Scale
        vtid: 8
        params: [double]
      - name: Label
        dispid: 4
        invoke: propget
        return: {code: string}
  - name: ICircle
    parent: IShape
    methods:
      - name: Radius
        vtid: 9
        return: {code: double, index: 0}
      - name: Broken
`

func loadSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shapes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestRunPrintsLayout(t *testing.T) {
	reg, err := load([]string{loadSample(t)})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(&out, reg, "ICircle", false, false))
	text := out.String()

	assert.Contains(t, text, "ICircle : IShape")
	assert.Contains(t, text, "  0  (reserved)")
	assert.Contains(t, text, "  7  IShape.Area")
	assert.Contains(t, text, "  9  ICircle.Radius")
	assert.Contains(t, text, "Radius [vtable, 8 bytes] ICircle.Radius vtable[9]")
	assert.Contains(t, text, "Broken [resolve] missing_descriptor")
}

func TestRunListAndValidate(t *testing.T) {
	reg, err := load([]string{loadSample(t)})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(&out, reg, "", true, false))
	assert.Contains(t, out.String(), "ICircle\n")
	assert.Contains(t, out.String(), "IDispatch\n")

	err = run(&out, reg, "", false, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
}

func TestInteractiveFilter(t *testing.T) {
	reg, err := load([]string{loadSample(t)})
	require.NoError(t, err)

	m := newInteractiveModel(reg)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	assert.Equal(t, stateFilter, m.state)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("circ")})
	assert.Equal(t, []string{"ICircle"}, m.visible)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stateShowInterface, m.state)
	assert.Contains(t, m.View(), "Radius")
}
