package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/imap"
	"github.com/mikey/mail-triage/internal/di"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/ports"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	switch flags.Command {
	case di.CommandRetro:
		err = container.Invoke(func(logger *zap.Logger, f *factory.FilterFactory) error {
			return runRetro(logger, f, flags)
		})
	case di.CommandAudit:
		err = container.Invoke(func(logger *zap.Logger, f *factory.FilterFactory) error {
			return runAudit(logger, f, flags)
		})
	default:
		err = container.Invoke(func(logger *zap.Logger, emailFilter ports.EmailFilter) error {
			return run(logger, emailFilter, flags)
		})
	}
	if err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, emailFilter ports.EmailFilter, flags *di.CLIFlags) error {
	defer logger.Sync()

	// Read email from file or stdin
	var reader io.Reader
	id := "stdin"
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		reader = file
		id = filepath.Base(flags.InputFile)
		logger.Debug("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		reader = os.Stdin
		logger.Debug("Reading email from stdin")
	}

	_, err := emailFilter.ProcessEmail(context.Background(), id, reader)
	return err
}

func runRetro(logger *zap.Logger, f *factory.FilterFactory, flags *di.CLIFlags) error {
	defer logger.Sync()

	opts, err := flags.RetroOptions(time.Now())
	if err != nil {
		return err
	}

	reclassifier, mailbox, err := f.CreateReclassifier()
	if err != nil {
		return err
	}
	defer mailbox.Logout()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	summary, err := reclassifier.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("reclassification stopped after %d messages: %w", summary.Fetched, err)
	}

	out := struct {
		Event    string `json:"event"`
		Duration string `json:"duration"`
		imap.RetroSummary
	}{
		Event:        "retro:summary",
		Duration:     time.Since(started).Round(time.Millisecond).String(),
		RetroSummary: summary,
	}
	return json.NewEncoder(os.Stdout).Encode(out)
}

func runAudit(logger *zap.Logger, f *factory.FilterFactory, flags *di.CLIFlags) error {
	defer logger.Sync()

	auditor, mailbox, err := f.CreateAuditor()
	if err != nil {
		return err
	}
	defer mailbox.Logout()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	groups, err := auditor.Run(ctx, flags.AuditOptions())
	if err != nil {
		return err
	}

	total := 0
	for _, group := range groups {
		total += group.Total
		fmt.Printf("%s: total=%d", group.Folder, group.Total)
		if breakdown := formatBuckets(group.Expected); breakdown != "" {
			fmt.Printf(" (%s)", breakdown)
		}
		fmt.Println()
		if flags.Verbose {
			for _, msg := range group.Messages {
				fmt.Printf("  uid=%d expected=%s subject=%q\n", msg.UID, msg.Expected, msg.Subject)
			}
		}
	}
	fmt.Printf("folders=%d misfiled=%d\n", len(groups), total)
	return nil
}

func formatBuckets(buckets map[string]int) string {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, buckets[name])
	}
	return strings.Join(parts, ", ")
}
