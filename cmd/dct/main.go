// Dacite CLI - compiles and runs Dacite programs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/dacite-lang/dacite/cache"
	"github.com/dacite-lang/dacite/compiler"
	"github.com/dacite-lang/dacite/manifest"
	"github.com/dacite-lang/dacite/pkg/bytecode"
	"github.com/dacite-lang/dacite/server"
)

const version = "0.1.0"

const (
	sourceExt = ".dcs"
	imageExt  = ".dci"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: dct <command> [options] [file]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run     Compile and execute a program\n")
	fmt.Fprintf(os.Stderr, "  build   Compile a program to an image file\n")
	fmt.Fprintf(os.Stderr, "  disasm  Print the bytecode listing of a program\n")
	fmt.Fprintf(os.Stderr, "  deps    Resolve project dependencies\n")
	fmt.Fprintf(os.Stderr, "  lsp     Start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "  version Print the version\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  dct run main.dcs             # Compile and run\n")
	fmt.Fprintf(os.Stderr, "  dct run -trace main.dcs      # Log every instruction\n")
	fmt.Fprintf(os.Stderr, "  dct build -o main.dci main.dcs\n")
	fmt.Fprintf(os.Stderr, "  dct disasm main.dci\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "build":
		err = cmdBuild(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "deps":
		err = cmdDeps(os.Args[2:])
	case "lsp":
		err = cmdLsp(os.Args[2:])
	case "version":
		fmt.Printf("dct %s (image format v%d)\n", version, bytecode.ImageVersion)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var vmErr *bytecode.VMError
		if errors.As(err, &vmErr) {
			os.Exit(vmErr.Code)
		}
		os.Exit(1)
	}
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	stackSize := fs.Int("stack", 0, "Initial stack size in bytes (0 = default)")
	trace := fs.Bool("trace", false, "Log every executed instruction")
	noCache := fs.Bool("no-cache", false, "Bypass the compiled-program cache")
	dump := fs.Bool("dump", false, "Dump registers after execution")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected one program file")
	}
	path := fs.Arg(0)

	m, err := manifest.FindAndLoad(filepath.Dir(path))
	if err != nil {
		return err
	}

	prog, err := loadProgram(path, m, *noCache)
	if err != nil {
		return err
	}

	if *trace {
		commonlog.Configure(2, nil)
	}

	vm := bytecode.NewVM()
	vm.SetTrace(*trace)
	if size := runStackSize(*stackSize, m); size > 0 {
		if err := vm.SetStackSize(size); err != nil {
			return err
		}
	}

	if err := vm.Execute(prog); err != nil {
		return err
	}
	if *dump {
		fmt.Fprint(os.Stderr, vm.DumpRegisters())
	}
	return nil
}

func runStackSize(flagSize int, m *manifest.Manifest) int {
	if flagSize > 0 {
		return flagSize
	}
	if m != nil && m.VM.StackSize > 0 {
		return m.VM.StackSize
	}
	return 0
}

func cmdBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	output := fs.String("o", "", "Output image path (default: source with "+imageExt+")")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("build: expected one source file")
	}
	path := fs.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := compile(string(source))
	if err != nil {
		return err
	}

	data, err := bytecode.MarshalImage(prog, bytecode.SourceHash(string(source)))
	if err != nil {
		return err
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(path, sourceExt) + imageExt
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes)\n", out, len(data))
	return nil
}

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("disasm: expected one program file")
	}
	path := fs.Arg(0)

	prog, err := loadProgram(path, nil, true)
	if err != nil {
		return err
	}
	fmt.Print(prog.DisassembleWithName(filepath.Base(path)))
	return nil
}

func cmdDeps(args []string) error {
	fs := flag.NewFlagSet("deps", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Verbose output")
	fs.Parse(args)

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("deps: no dacite.toml found from %s", dir)
	}

	deps, err := manifest.NewResolver(m, *verbose).Resolve()
	if err != nil {
		return err
	}

	if len(deps) == 0 {
		fmt.Println("No dependencies.")
		return nil
	}
	for _, d := range deps {
		fmt.Printf("  %s -> %s\n", d.Name, d.LocalPath)
	}
	return nil
}

func cmdLsp(args []string) error {
	fs := flag.NewFlagSet("lsp", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	return server.NewLSP(version).Run()
}

// loadProgram reads a source or image file and returns an executable program.
// Source files go through the cache unless it is bypassed or disabled.
func loadProgram(path string, m *manifest.Manifest, noCache bool) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if filepath.Ext(path) == imageExt {
		img, err := bytecode.UnmarshalImage(data)
		if err != nil {
			return nil, err
		}
		return img.Program(), nil
	}

	source := string(data)
	useCache := !noCache && (m == nil || m.CacheEnabled())
	if !useCache {
		return compile(source)
	}

	var c *cache.Cache
	if m != nil && m.CachePath() != "" {
		c, err = cache.Open(m.CachePath())
	} else {
		c, err = cache.OpenDefault()
	}
	if err != nil {
		// A broken cache never blocks execution.
		return compile(source)
	}
	defer c.Close()

	hash := bytecode.SourceHash(source)
	if img, err := c.Get(hash); err == nil {
		return img.Program(), nil
	}

	prog, err := compile(source)
	if err != nil {
		return nil, err
	}
	if err := c.Put(hash, prog); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: caching program: %v\n", err)
	}
	return prog, nil
}

// compile runs the front end and lowering, reporting every error on stderr.
func compile(source string) (*bytecode.Program, error) {
	parser := compiler.NewParser(source)
	top := parser.ParseProgram()
	if errs := parser.Errors(); len(errs) > 0 {
		for _, msg := range errs {
			fmt.Fprintln(os.Stderr, msg)
		}
		return nil, fmt.Errorf("%d parse errors", len(errs))
	}

	prog, errs := bytecode.Compile(top)
	if len(errs) > 0 {
		for _, msg := range errs {
			fmt.Fprintln(os.Stderr, msg)
		}
		return nil, fmt.Errorf("%d compile errors", len(errs))
	}
	return prog, nil
}
