// Command inspect loads interface declarations and prints the vtable
// layout and resolved method descriptors the runtime would use.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/com-runtime/descriptor"
)

func main() {
	var (
		declFiles   = flag.String("decl", "", "Declaration files (comma-separated)")
		ifaceName   = flag.String("iface", "", "Interface to show (default: all)")
		list        = flag.Bool("list", false, "List interface names and exit")
		validate    = flag.Bool("validate", false, "Validate every method and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *declFiles == "" {
		fmt.Fprintln(os.Stderr, "Usage: inspect -decl <file.yaml>[,file2.yaml] [-iface name]")
		fmt.Fprintln(os.Stderr, "       inspect -decl <file.yaml> -list")
		fmt.Fprintln(os.Stderr, "       inspect -decl <file.yaml> -validate")
		fmt.Fprintln(os.Stderr, "       inspect -decl <file.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	reg, err := load(strings.Split(*declFiles, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(reg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Stdout, reg, *ifaceName, *list, *validate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func load(paths []string) (*descriptor.Registry, error) {
	reg := descriptor.NewRegistry(nil)
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ifaces, err := descriptor.LoadYAMLFile(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		if err := reg.Register(ifaces...); err != nil {
			return nil, fmt.Errorf("register %s: %w", p, err)
		}
	}
	return reg, nil
}

func run(w io.Writer, reg *descriptor.Registry, ifaceName string, listOnly, validateOnly bool) error {
	if listOnly {
		for _, name := range reg.Names() {
			fmt.Fprintln(w, name)
		}
		return nil
	}
	if validateOnly {
		if err := reg.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(w, "%d interface(s) OK\n", len(reg.Names()))
		return nil
	}

	r := newRenderer(isTerminal(w), termWidth(w))
	names := reg.Names()
	if ifaceName != "" {
		names = []string{ifaceName}
	}
	for n, name := range names {
		i, err := reg.Lookup(name)
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, r.interfaceView(reg, i))
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func termWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
