package core

import (
	"io"
	"time"
)

// Classifier assigns a primary category to a feature record
type Classifier interface {
	// Classify never fails; rule failures degrade the result instead
	Classify(record *FeatureRecord) Classified
}

// FeatureExtractor builds a FeatureRecord from a raw RFC 5322 message
type FeatureExtractor interface {
	Extract(id string, raw io.Reader) (*FeatureRecord, error)
}

// ClassificationObserver is notified of every classification
type ClassificationObserver interface {
	ObserveClassification(c Classified, elapsed time.Duration)
}
