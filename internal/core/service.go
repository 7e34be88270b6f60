package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriageService is the core service for message triage
type TriageService struct {
	classifier Classifier
	extractor  FeatureExtractor
	observer   ClassificationObserver
	logger     *zap.Logger
}

// NewTriageService creates a new triage service. The observer may be nil.
func NewTriageService(
	classifier Classifier,
	extractor FeatureExtractor,
	observer ClassificationObserver,
	logger *zap.Logger,
) *TriageService {
	return &TriageService{
		classifier: classifier,
		extractor:  extractor,
		observer:   observer,
		logger:     logger,
	}
}

// Classify classifies an already extracted record
func (s *TriageService) Classify(ctx context.Context, record *FeatureRecord) (*Classified, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := s.classifier.Classify(record)
	elapsed := time.Since(start)
	result.ProcessingID = uuid.NewString()

	if s.observer != nil {
		s.observer.ObserveClassification(result, elapsed)
	}

	messageID := ""
	if record != nil {
		messageID = record.ID
	}
	s.logger.Info("Message classified",
		zap.String("processing_id", result.ProcessingID),
		zap.String("message_id", messageID),
		zap.String("label", result.PrimaryLabel),
		zap.String("folder", result.PrimaryFolder),
		zap.Float64("confidence", result.PrimaryConfidence),
		zap.Bool("move", result.Move),
		zap.Strings("detections", detectionLabels(result.Detections)),
		zap.Duration("elapsed", elapsed))

	return &result, nil
}

// ProcessMessage extracts features from a raw message and classifies it
func (s *TriageService) ProcessMessage(ctx context.Context, id string, raw io.Reader) (*FeatureRecord, *Classified, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	record, err := s.extractor.Extract(id, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract features: %w", err)
	}

	s.logger.Debug("Features extracted",
		zap.String("message_id", id),
		zap.String("sender", record.From),
		zap.String("subject", record.Subject),
		zap.Int("links", len(record.Links)),
		zap.Int("attachments", len(record.AttachmentExts)))

	result, err := s.Classify(ctx, record)
	if err != nil {
		return nil, nil, err
	}
	return record, result, nil
}

// FormatEvidence renders the fired rules of every detection for headers and logs
func FormatEvidence(c *Classified) string {
	var parts []string
	for _, d := range c.Detections {
		for _, ev := range d.Evidence {
			parts = append(parts, d.Label+"/"+ev.RuleID)
		}
	}
	return strings.Join(parts, ",")
}

func detectionLabels(detections []Detection) []string {
	labels := make([]string, len(detections))
	for i, d := range detections {
		labels[i] = d.Label
	}
	return labels
}
