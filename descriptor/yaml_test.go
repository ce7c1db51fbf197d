package descriptor

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/wire"
)

const declYAML = `
interfaces:
  - name: IDocument
    iid: 6d3e4a1c-1b7a-4c3f-9f0a-2f4e5d6c7b8a
    parent: IDispatch
    methods:
      - name: Title
        vtid: 7
        dispid: 1
        invoke: propget
        return: {code: string}
      - name: Save
        vtid: 8
        params: [string, variant, "int32*"]
        defaults:
          - ~
          - !missing ""
          - 0
      - name: SaveAs
        use_defaults: {target: Save, mapping: [0]}
      - name: Print
        dispid: 9
        params: [bool]
        return: {code: int32, index: 0, inout: true}
`

func TestLoadYAML(t *testing.T) {
	ifaces, err := LoadYAML(strings.NewReader(declYAML))
	require.NoError(t, err)
	require.Len(t, ifaces, 1)

	doc := ifaces[0]
	assert.Equal(t, "IDocument", doc.Name)
	assert.Equal(t, uuid.MustParse("6d3e4a1c-1b7a-4c3f-9f0a-2f4e5d6c7b8a"), doc.IID)
	require.Len(t, doc.Methods, 4)

	title := doc.Methods[0]
	assert.Equal(t, comruntime.InvokePropertyGet, title.Invoke)
	assert.Equal(t, -1, title.Return.Index)

	save := doc.Methods[1]
	assert.Equal(t, []wire.Code{wire.CodeString, wire.CodeVariant, wire.CodeInt32 | wire.CodeByRef}, save.Params)
	require.Len(t, save.Defaults, 3)
	assert.Nil(t, save.Defaults[0])
	assert.Equal(t, wire.Missing, save.Defaults[1])
	assert.Equal(t, 0, save.Defaults[2])

	r := NewRegistry(nil)
	require.NoError(t, r.Register(ifaces...))
	require.NoError(t, r.Validate())

	d, err := r.Resolve(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ReturnIndex)

	d, err = r.Resolve(doc, 3)
	require.NoError(t, err)
	assert.Equal(t, KindDispatch, d.Kind)
	assert.True(t, d.ReturnInOut)
}

func TestLoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad iid", "interfaces: [{name: I, iid: nope}]"},
		{"bad code", "interfaces: [{name: I, methods: [{name: M, params: [quux]}]}]"},
		{"bad invoke", "interfaces: [{name: I, methods: [{name: M, invoke: call}]}]"},
		{"unknown field", "interfaces: [{name: I, colour: red}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadYAML_Empty(t *testing.T) {
	ifaces, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ifaces)
}
