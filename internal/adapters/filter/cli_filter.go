package filter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
)

// CliFilter classifies a single message and prints the decision
type CliFilter struct {
	service *core.TriageService
	logger  *zap.Logger
	verbose bool
	out     io.Writer
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(service *core.TriageService, logger *zap.Logger, verbose bool) (*CliFilter, error) {
	return &CliFilter{
		service: service,
		logger:  logger,
		verbose: verbose,
		out:     os.Stdout,
	}, nil
}

// SetOutput redirects the report
func (f *CliFilter) SetOutput(w io.Writer) {
	f.out = w
}

// ProcessEmail classifies a message and displays the results
func (f *CliFilter) ProcessEmail(ctx context.Context, id string, raw io.Reader) (*core.Classified, error) {
	f.logger.Debug("Processing message", zap.String("message_id", id))

	startTime := time.Now()
	record, result, err := f.service.ProcessMessage(ctx, id, raw)
	if err != nil {
		f.logger.Error("Failed to classify message", zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return nil, err
	}
	duration := time.Since(startTime)

	fmt.Fprintf(f.out, "\n=== Message Summary ===\n")
	fmt.Fprintf(f.out, "From: %s\n", record.From)
	fmt.Fprintf(f.out, "Reply-To: %s\n", record.ReplyTo)
	fmt.Fprintf(f.out, "Subject: %s\n", record.Subject)
	fmt.Fprintf(f.out, "Links: %d, attachments: %d\n", len(record.Links), len(record.AttachmentExts))

	if f.verbose {
		preview := record.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Fprintf(f.out, "\nBody preview:\n%s\n", preview)
	}

	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Primary label: %s\n", result.PrimaryLabel)
	fmt.Fprintf(f.out, "Folder: %s\n", result.PrimaryFolder)
	fmt.Fprintf(f.out, "Confidence: %s\n", metrics.FormatConfidence(result.PrimaryConfidence))
	fmt.Fprintf(f.out, "Move: %t\n", result.Move)

	if len(result.Detections) > 0 {
		fmt.Fprintf(f.out, "\n=== Detections ===\n")
		for _, d := range result.Detections {
			fmt.Fprintf(f.out, "%-14s %s\n", d.Label, metrics.FormatConfidence(d.Confidence))
			if !f.verbose {
				continue
			}
			for _, ev := range d.Evidence {
				if ev.Detail != "" {
					fmt.Fprintf(f.out, "    %s: %s\n", ev.RuleID, ev.Detail)
				} else {
					fmt.Fprintf(f.out, "    %s\n", ev.RuleID)
				}
			}
		}
	}
	fmt.Fprintf(f.out, "\nProcessing time: %v\n", duration)

	return result, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
