package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/facesdk/artifact"
	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/runtime"
)

// localEngine selects the in-process engine instead of a library file.
const localEngine = "local"

type options struct {
	sdkPath     string
	libPath     string
	configPath  string
	unitType    string
	blockConfig string
	input       string
	fetch       bool
	tree        bool
	interactive bool
	repl        bool
	verbose     bool
}

func main() {
	var o options
	flag.StringVar(&o.sdkPath, "sdk", "", "SDK root holding data/models and the platform binaries")
	flag.StringVar(&o.libPath, "lib", "", `engine library (.so, .dll or .wasm), or "local" for the in-process engine`)
	flag.StringVar(&o.configPath, "config", "", "YAML service config")
	flag.StringVar(&o.unitType, "unit", "", "unit type of the processing block to run")
	flag.StringVar(&o.blockConfig, "block", "", "extra block config as JSON or YAML (@file reads a file)")
	flag.StringVar(&o.input, "input", "", "input context as JSON or YAML (@file reads a file, - reads stdin)")
	flag.BoolVar(&o.fetch, "fetch", false, "download missing model files")
	flag.BoolVar(&o.tree, "tree", false, "print the result as a tree")
	flag.BoolVar(&o.interactive, "i", false, "explore the result in a TUI")
	flag.BoolVar(&o.repl, "repl", false, "open a shell over the input context")
	flag.BoolVar(&o.verbose, "v", false, "debug logging to stderr")
	flag.Parse()

	if o.unitType == "" && o.input == "" && !o.repl {
		fmt.Fprintln(os.Stderr, "Usage: facesdk -unit <UNIT_TYPE> [-input <json|yaml|@file|->] [-sdk dir] [-lib path|local]")
		fmt.Fprintln(os.Stderr, "       facesdk -input <json|yaml> -tree")
		fmt.Fprintln(os.Stderr, "       facesdk -repl [-unit <UNIT_TYPE>]")
		fmt.Fprintln(os.Stderr, "       facesdk -unit <UNIT_TYPE> -input @ctx.json -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(context.Background(), o, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdin io.Reader, stdout *os.File) error {
	log := zap.NewNop()
	if o.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		log = l
		defer func() { _ = log.Sync() }()
	}
	engine.SetLogger(log)
	artifact.SetLogger(log)

	svc, err := newService(ctx, o, log)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	defer svc.Close(ctx)

	lit, err := readLiteral(o.input, stdin)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	c, err := svc.CreateContext(lit)
	if err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	defer c.Close()

	var blk *runtime.ProcessingBlock
	if o.unitType != "" {
		cfg, err := blockConfig(o.unitType, o.blockConfig, stdin)
		if err != nil {
			return fmt.Errorf("block config: %w", err)
		}
		if blk, err = svc.CreateProcessingBlock(ctx, cfg); err != nil {
			return fmt.Errorf("create block: %w", err)
		}
		defer blk.Close()
	}

	if o.repl {
		return runRepl(svc, c, blk)
	}

	if blk != nil {
		if err := blk.Process(c); err != nil {
			return fmt.Errorf("process %s: %w", blk.UnitType(), err)
		}
	}

	if o.interactive {
		if !term.IsTerminal(int(stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(c, title(o))
	}

	out, err := c.ToLiteral()
	if err != nil {
		return fmt.Errorf("read result: %w", err)
	}
	if o.tree {
		_, err = fmt.Fprintln(stdout, drawTree(out))
		return err
	}
	return writeJSON(stdout, out, term.IsTerminal(int(stdout.Fd())))
}

func newService(ctx context.Context, o options, log *zap.Logger) (*runtime.Service, error) {
	var cfg runtime.Config
	if o.configPath != "" {
		var err error
		if cfg, err = runtime.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	} else {
		cfg.Artifacts.Disabled = !o.fetch
	}
	if o.sdkPath != "" {
		cfg.SDKPath = o.sdkPath
	}
	if o.fetch {
		cfg.Artifacts.Disabled = false
	}

	opts := []runtime.Option{runtime.WithLogger(log)}
	switch o.libPath {
	case "":
	case localEngine:
		opts = append(opts, runtime.WithLibrary(engine.NewLocal(engine.WithLocalLogger(log))))
	default:
		opts = append(opts, runtime.WithLibraryPath(o.libPath))
	}
	return runtime.NewFromConfig(ctx, cfg, opts...)
}

func blockConfig(unitType, raw string, stdin io.Reader) (map[string]any, error) {
	cfg := map[string]any{}
	if raw != "" {
		lit, err := readLiteral(raw, stdin)
		if err != nil {
			return nil, err
		}
		m, ok := lit.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a mapping, got %T", lit)
		}
		cfg = m
	}
	cfg["unit_type"] = unitType
	return cfg, nil
}

func title(o options) string {
	if o.unitType != "" {
		return o.unitType
	}
	return "context"
}
