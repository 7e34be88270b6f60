package di

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/imap"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/logging"
)

// CLI commands besides classifying a single message
const (
	CommandRetro = "retro"
	CommandAudit = "audit"
)

const defaultRetroDays = 7

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Command is empty for single-message classification
	Command string

	// Extraction flags
	MaxBodySize   int
	SelfAddresses string

	// Triage flags
	TransactionalDomains string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string

	// Reclassification flags
	Days      int
	Since     string
	PageSize  int
	MaxPages  int
	DryRun    bool
	Overwrite bool

	// Audit flags
	MaxPerFolder int
	Classify     bool
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags, _ := ParseFlagSet(fs, os.Args[1:])
	return flags
}

// ParseFlagSet registers the CLI flags on fs and parses args. A leading
// "retro" or "audit" argument selects that command.
func ParseFlagSet(fs *flag.FlagSet, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	if len(args) > 0 && (args[0] == CommandRetro || args[0] == CommandAudit) {
		flags.Command, args = args[0], args[1:]
	}

	fs.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum body sample size in bytes")
	fs.StringVar(&flags.SelfAddresses, "self", "", "Comma-separated list of the mailbox owner's addresses")
	fs.StringVar(&flags.TransactionalDomains, "transactional", "", "Comma-separated list of extra transactional sender domains")

	fs.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Show evidence and enable debug logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	fs.IntVar(&flags.Days, "days", 0, "retro: reprocess messages from the last N days (default 7)")
	fs.StringVar(&flags.Since, "since", "", "retro: reprocess messages received on or after this date (RFC 3339 or YYYY-MM-DD)")
	fs.IntVar(&flags.PageSize, "page-size", 50, "retro: messages fetched per page")
	fs.IntVar(&flags.MaxPages, "max-pages", 500, "retro: maximum number of pages")
	fs.BoolVar(&flags.DryRun, "dry-run", false, "retro: classify and log without changing the mailbox")
	fs.BoolVar(&flags.Overwrite, "overwrite", false, "retro: replace existing tags in the triage namespace")

	fs.IntVar(&flags.MaxPerFolder, "max-per-folder", 0, "audit: newest messages inspected per folder (0 means all)")
	fs.BoolVar(&flags.Classify, "classify", true, "audit: classify every misfiled message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// RetroOptions turns the reclassification flags into run options. -since
// wins over -days; without either the last seven days are visited.
func (f *CLIFlags) RetroOptions(now time.Time) (imap.RetroOptions, error) {
	opts := imap.RetroOptions{
		PageSize:  f.PageSize,
		MaxPages:  f.MaxPages,
		DryRun:    f.DryRun,
		Overwrite: f.Overwrite,
	}

	switch {
	case f.Since != "":
		since, err := parseSince(f.Since)
		if err != nil {
			return opts, err
		}
		opts.Since = since
	case f.Days < 0:
		return opts, fmt.Errorf("invalid -days %d: must not be negative", f.Days)
	case f.Days > 0:
		opts.Since = now.AddDate(0, 0, -f.Days)
	default:
		opts.Since = now.AddDate(0, 0, -defaultRetroDays)
	}
	return opts, nil
}

// AuditOptions turns the audit flags into run options
func (f *CLIFlags) AuditOptions() imap.AuditOptions {
	return imap.AuditOptions{MaxPerFolder: f.MaxPerFolder, Classify: f.Classify}
}

func parseSince(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid -since %q: expected RFC 3339 or YYYY-MM-DD", value)
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := configFromFlags(flags)
		if err != nil {
			return nil, err
		}
		if flags.ConfigFile != "" {
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideTriage(container); err != nil {
		return nil, err
	}

	return container, nil
}

// configFromFlags loads the config file when given, otherwise builds a
// configuration from command line flags. Mailbox commands always load the
// regular configuration so the IMAP account settings apply. The filter is
// always the CLI one.
func configFromFlags(flags *CLIFlags) (*config.Config, error) {
	var cfg *config.Config
	if flags.ConfigFile != "" || flags.Command != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if self := splitList(flags.SelfAddresses); len(self) > 0 {
			cfg.Set("imap.self_addresses", self)
		}
	} else {
		v := config.NewEmptyViper()
		v.Set("extract.max_body_size", flags.MaxBodySize)
		v.Set("imap.self_addresses", splitList(flags.SelfAddresses))
		v.Set("triage.transactional_domains", splitList(flags.TransactionalDomains))
		cfg = config.NewFromViper(v)
	}

	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.verbose", flags.Verbose)
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
