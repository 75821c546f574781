// Package main implements the pxindex binary.
// It builds the primary index or a secondary index of a Paradox-style
// table and writes it to the output file.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pxtools/pxindex/internal/app"
	"github.com/pxtools/pxindex/internal/config"
	pxerrors "github.com/pxtools/pxindex/internal/errors"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

const missingOutputMessage = "You must at least specify an output file."

// options holds the parsed command line.
type options struct {
	configFile  string
	output      string
	input       string
	secIndex    string
	catalog     string
	metricsFile string
	verbose     bool
	useGSF      bool
	noAtomic    bool
	showHelp    bool
	showVersion bool

	positional []string
	set        map[string]bool
}

// shortValueFlags take an argument and may be glued to it ("-s2").
var shortValueFlags = map[byte]bool{'o': true, 'd': true, 's': true}

// shortBoolFlags may be grouped ("-vh").
var shortBoolFlags = map[byte]bool{'v': true, 'h': true}

func newFlagSet(opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("pxindex", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	fs.StringVar(&opts.output, "o", "", "")
	fs.StringVar(&opts.output, "output-file", "", "")
	fs.StringVar(&opts.input, "d", "", "")
	fs.StringVar(&opts.input, "database-file", "", "")
	fs.StringVar(&opts.secIndex, "s", "", "")
	fs.StringVar(&opts.secIndex, "secindex", "", "")
	fs.BoolVar(&opts.verbose, "v", false, "")
	fs.BoolVar(&opts.verbose, "verbose", false, "")
	fs.BoolVar(&opts.showHelp, "h", false, "")
	fs.BoolVar(&opts.showHelp, "help", false, "")
	fs.BoolVar(&opts.showVersion, "version", false, "")
	fs.BoolVar(&opts.useGSF, "use-gsf", false, "")
	fs.StringVar(&opts.configFile, "config", "", "")
	fs.StringVar(&opts.catalog, "catalog", "", "")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "")
	fs.BoolVar(&opts.noAtomic, "no-atomic", false, "")
	return fs
}

// parseArgs parses args the way getopt_long permutes them: options and
// operands may be mixed, and everything after "--" is an operand.
func parseArgs(args []string) (*options, error) {
	opts := &options{set: make(map[string]bool)}
	fs := newFlagSet(opts)

	rest := expandShortOptions(fs, args)
	for len(rest) > 0 {
		if err := fs.Parse(rest); err != nil {
			return nil, pxerrors.Wrap(pxerrors.ErrCategoryUsage, pxerrors.CodeInvalidOption, "invalid command line", err)
		}
		remaining := fs.Args()
		consumed := len(rest) - len(remaining)
		if consumed > 0 && rest[consumed-1] == "--" {
			opts.positional = append(opts.positional, remaining...)
			break
		}
		if len(remaining) == 0 {
			break
		}
		opts.positional = append(opts.positional, remaining[0])
		rest = remaining[1:]
	}

	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// expandShortOptions rewrites grouped short options ("-vs2") into the
// separate form the flag package understands ("-v", "-s", "2").
func expandShortOptions(fs *flag.FlagSet, args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if len(arg) <= 2 || arg[0] != '-' || arg[1] == '-' {
			out = append(out, arg)
			continue
		}
		name := arg[1:]
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		if fs.Lookup(name) != nil {
			out = append(out, arg)
			continue
		}

		expanded, ok := splitShortGroup(arg[1:])
		if !ok {
			out = append(out, arg)
			continue
		}
		out = append(out, expanded...)
	}
	return out
}

func splitShortGroup(group string) ([]string, bool) {
	var out []string
	for j := 0; j < len(group); j++ {
		c := group[j]
		switch {
		case shortBoolFlags[c]:
			out = append(out, "-"+string(c))
		case shortValueFlags[c]:
			out = append(out, "-"+string(c))
			if j+1 < len(group) {
				out = append(out, strings.TrimPrefix(group[j+1:], "="))
			}
			return out, true
		default:
			return nil, false
		}
	}
	return out, true
}

func run(args []string, stdout, stderr io.Writer) int {
	progname := "pxindex"
	if len(args) > 0 {
		progname = filepath.Base(args[0])
		args = args[1:]
	}

	opts, err := parseArgs(args)
	if err != nil {
		return fail(stdout, stderr, progname, err)
	}

	if opts.showHelp {
		usage(stdout, progname)
		return 0
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	if len(opts.positional) > 0 {
		opts.output = opts.positional[0]
	}

	log.SetFlags(0)
	log.SetPrefix(progname + ": ")
	log.SetOutput(io.Discard)

	cfg, err := loadConfig(opts)
	if err != nil {
		return fail(stdout, stderr, progname, err)
	}
	if cfg.Verbose {
		log.SetOutput(stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := build(ctx, cfg, stderr); err != nil {
		return fail(stdout, stderr, progname, err)
	}
	return 0
}

// fail reports err on stderr and returns the exit status. Usage errors are
// followed by the usage text on stdout.
func fail(stdout, stderr io.Writer, progname string, err error) int {
	if pxerrors.GetCode(err) == pxerrors.CodeMissingOutput {
		fmt.Fprintln(stderr, missingOutputMessage)
		fmt.Fprintln(stderr)
	} else {
		fmt.Fprintf(stderr, "%s: %v\n", progname, err)
	}
	if pxerrors.IsUsage(err) {
		usage(stdout, progname)
	}
	return pxerrors.ExitCode(err)
}

func build(ctx context.Context, cfg *config.Config, diagnostics io.Writer) error {
	application, err := app.New(cfg, app.WithDiagnostics(diagnostics))
	if err != nil {
		return err
	}
	defer application.Close()

	_, err = application.Run(ctx)
	return err
}

// loadConfig loads configuration from file, environment, and command line
// options, in increasing priority.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if opts.configFile != "" {
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, pxerrors.Wrap(pxerrors.ErrCategoryUsage, pxerrors.CodeInvalidOption, "failed to load config file", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if opts.output != "" {
		cfg.Output = opts.output
	}
	if opts.input != "" {
		cfg.Input = opts.input
	}
	if opts.set["s"] || opts.set["secindex"] {
		n, err := strconv.Atoi(strings.TrimSpace(opts.secIndex))
		if err != nil || n < 0 {
			return nil, pxerrors.NewUsageError(pxerrors.CodeInvalidOption,
				fmt.Sprintf("secondary index field must be a field number, got %q", opts.secIndex))
		}
		cfg.SecondaryIndex = n
	}
	if opts.verbose {
		cfg.Verbose = true
	}
	if opts.useGSF {
		cfg.UseStreamInput = true
	}
	if opts.noAtomic {
		cfg.AtomicReplace = false
	}
	if opts.catalog != "" {
		cfg.CatalogPath = opts.catalog
	}
	if opts.metricsFile != "" {
		cfg.MetricsFile = opts.metricsFile
	}

	if cfg.Output == "" {
		return nil, pxerrors.NewUsageError(pxerrors.CodeMissingOutput, missingOutputMessage)
	}
	if cfg.Input == "" {
		return nil, pxerrors.NewUsageError(pxerrors.CodeMissingInput, "no database file given, use -d FILE")
	}
	return cfg, nil
}

func usage(w io.Writer, progname string) {
	fmt.Fprintf(w, "Version: %s %s (commit: %s)\n", progname, version, commit)
	fmt.Fprintf(w, "Builds the primary or a secondary index of a Paradox-style table.\n\n")
	fmt.Fprintf(w, "Usage: %s [OPTIONS] FILE\n\n", progname)
	fmt.Fprintf(w, "Options:\n\n")
	fmt.Fprintf(w, "  -h, --help          this usage information.\n")
	fmt.Fprintf(w, "  --version           show version information.\n")
	fmt.Fprintf(w, "  -v, --verbose       be more verbose.\n")
	fmt.Fprintf(w, "  -o, --output-file=FILE write the index to this file.\n")
	fmt.Fprintf(w, "  -d, --database-file=FILE read database from this file.\n")
	fmt.Fprintf(w, "  -s, --secindex=NUMBER create a secondary from field NUMBER.\n")
	fmt.Fprintf(w, "  --use-gsf           read the input file through the stream reader.\n")
	fmt.Fprintf(w, "  --config=FILE       read options from a YAML or JSON file.\n")
	fmt.Fprintf(w, "  --catalog=FILE      record the build in this SQLite catalog.\n")
	fmt.Fprintf(w, "  --metrics-file=FILE write build metrics in Prometheus text format.\n")
	fmt.Fprintf(w, "  --no-atomic         write the index file in place.\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Environment Variables:\n")
	fmt.Fprintf(w, "  PXINDEX_OUTPUT, PXINDEX_INPUT, PXINDEX_SECONDARY_INDEX, PXINDEX_VERBOSE,\n")
	fmt.Fprintf(w, "  PXINDEX_USE_STREAM_INPUT, PXINDEX_ATOMIC_REPLACE, PXINDEX_BLOCK_SIZE_KB,\n")
	fmt.Fprintf(w, "  PXINDEX_MAX_SORT_MEMORY_MB, PXINDEX_CATALOG_PATH, PXINDEX_METRICS_FILE\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s has no support for recoding.\n", progname)
	fmt.Fprintf(w, "%s has been compiled for %s endian architecture.\n", progname, hostByteOrder())
	fmt.Fprintf(w, "%s has stream input support: Yes\n", progname)
	fmt.Fprintf(w, "%s has version: %s\n\n", progname, version)
}

func hostByteOrder() string {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return "little"
	}
	return "big"
}
