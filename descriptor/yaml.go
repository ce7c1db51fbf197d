package descriptor

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	comruntime "github.com/wippyai/com-runtime"
	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/wire"
)

// File is the YAML form of generator output.
type File struct {
	Interfaces []InterfaceDecl `yaml:"interfaces"`
}

// InterfaceDecl is the YAML form of Interface.
type InterfaceDecl struct {
	Name    string       `yaml:"name"`
	IID     string       `yaml:"iid"`
	Parent  string       `yaml:"parent"`
	Methods []MethodDecl `yaml:"methods"`
}

// MethodDecl is the YAML form of Method. Codes are written as wire code
// names, with a trailing "*" for by-reference parameters.
type MethodDecl struct {
	VTID         *int             `yaml:"vtid"`
	DispID       *int32           `yaml:"dispid"`
	Return       *ReturnDecl      `yaml:"return"`
	UseDefaults  *UseDefaultsDecl `yaml:"use_defaults"`
	Name         string           `yaml:"name"`
	Invoke       string           `yaml:"invoke"`
	Params       []string         `yaml:"params"`
	Defaults     []yaml.Node      `yaml:"defaults"`
	DefaultChain []string         `yaml:"default_chain"`
	Default      bool             `yaml:"default"`
	Restricted   bool             `yaml:"restricted"`
}

// ReturnDecl is the YAML form of Return.
type ReturnDecl struct {
	Index     *int   `yaml:"index"`
	Code      string `yaml:"code"`
	Interface string `yaml:"interface"`
	InOut     bool   `yaml:"inout"`
}

// UseDefaultsDecl is the YAML form of UseDefaults.
type UseDefaultsDecl struct {
	Target  string `yaml:"target"`
	Mapping []int  `yaml:"mapping"`
}

// missingTag marks an omittable parameter in YAML defaults.
const missingTag = "!missing"

// LoadYAML decodes interface declarations from r.
func LoadYAML(r io.Reader) ([]*Interface, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode declarations")
	}
	return f.Build()
}

// LoadYAMLFile decodes interface declarations from the file at path.
func LoadYAMLFile(path string) ([]*Interface, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "open declarations")
	}
	defer fh.Close()
	return LoadYAML(fh)
}

// Build converts the declarations into Interface values.
func (f *File) Build() ([]*Interface, error) {
	out := make([]*Interface, 0, len(f.Interfaces))
	for _, d := range f.Interfaces {
		i := &Interface{Name: d.Name, Parent: d.Parent}
		if d.IID != "" {
			id, err := uuid.Parse(d.IID)
			if err != nil {
				return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
					At(d.Name, "").
					Detail("bad iid %q", d.IID).
					Cause(err).
					Build()
			}
			i.IID = id
		}
		for _, md := range d.Methods {
			m, err := md.build(d.Name)
			if err != nil {
				return nil, err
			}
			i.Methods = append(i.Methods, m)
		}
		out = append(out, i)
	}
	return out, nil
}

func (md *MethodDecl) build(iface string) (*Method, error) {
	m := &Method{
		Name:         md.Name,
		VTID:         md.VTID,
		DispID:       md.DispID,
		DefaultChain: md.DefaultChain,
		IsDefault:    md.Default,
		Restricted:   md.Restricted,
	}
	bad := func(format string, args ...any) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			At(iface, md.Name).
			Detail(format, args...).
			Build()
	}

	kind, ok := parseInvokeKind(md.Invoke)
	if !ok {
		return nil, bad("unknown invoke kind %q", md.Invoke)
	}
	m.Invoke = kind

	for _, p := range md.Params {
		code, ok := wire.ParseCode(p)
		if !ok {
			return nil, bad("unknown parameter code %q", p)
		}
		m.Params = append(m.Params, code)
	}

	if md.Return != nil {
		code, ok := wire.ParseCode(md.Return.Code)
		if !ok {
			return nil, bad("unknown return code %q", md.Return.Code)
		}
		m.Return = &Return{Code: code, Index: -1, InOut: md.Return.InOut, Interface: md.Return.Interface}
		if md.Return.Index != nil {
			m.Return.Index = *md.Return.Index
		}
	}

	for n := range md.Defaults {
		node := &md.Defaults[n]
		if node.Tag == missingTag {
			m.Defaults = append(m.Defaults, wire.Missing)
			continue
		}
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, bad("default %d: %v", n, err)
		}
		m.Defaults = append(m.Defaults, v)
	}

	if md.UseDefaults != nil {
		m.UseDefaults = &UseDefaults{Target: md.UseDefaults.Target, Mapping: md.UseDefaults.Mapping}
	}
	return m, nil
}

func parseInvokeKind(s string) (comruntime.InvokeKind, bool) {
	switch strings.ToLower(s) {
	case "":
		return 0, true
	case "method":
		return comruntime.InvokeMethod, true
	case "propget":
		return comruntime.InvokePropertyGet, true
	case "propput":
		return comruntime.InvokePropertyPut, true
	case "propputref":
		return comruntime.InvokePropertyPutRef, true
	}
	return 0, false
}
