// Package correlator attaches a remote weight estimate to the published
// measurement on operator demand.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/metrics"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

// DefaultDocPrefix is the required prefix of a sampling identifier
const DefaultDocPrefix = "DOC-"

// Remote is the subset of the weight service the correlator calls
type Remote interface {
	FetchCages(ctx context.Context) ([]Cage, error)
	ComputeWeight(ctx context.Context, req WeightRequest) (WeightResult, error)
}

// Correlator resolves a DOC to a sampling session, sends the published
// dimensions for that session and writes back the returned weight
type Correlator struct {
	remote    Remote
	store     *snapshot.Store
	docPrefix string
	metrics   *metrics.Metrics
}

// New returns a correlator. An empty docPrefix selects DefaultDocPrefix;
// m may be nil.
func New(remote Remote, store *snapshot.Store, docPrefix string, m *metrics.Metrics) *Correlator {
	if docPrefix == "" {
		docPrefix = DefaultDocPrefix
	}
	return &Correlator{
		remote:    remote,
		store:     store,
		docPrefix: docPrefix,
		metrics:   m,
	}
}

// ValidateDoc trims doc and checks it carries the prefix and a suffix
func (c *Correlator) ValidateDoc(doc string) (string, error) {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if !strings.HasPrefix(doc, c.docPrefix) || len(doc) == len(c.docPrefix) {
		return "", fmt.Errorf("%w: %q must look like %s<id>", ErrInvalidIdentifier, doc, c.docPrefix)
	}
	return doc, nil
}

// Correlate runs one correlation. Only the weight of the published state
// is written, and only on success.
func (c *Correlator) Correlate(ctx context.Context, doc string) (WeightResult, error) {
	res, err := c.correlate(ctx, doc)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CorrelationsFailed.Add(1)
		}
		if errors.Is(err, ErrInvalidIdentifier) || errors.Is(err, ErrNoMeasurement) {
			logger.Info("Correlator", "Correlation refused: %v", err)
		} else {
			logger.Warn("Correlator", "Correlation failed: %v", err)
		}
		return WeightResult{}, err
	}
	if c.metrics != nil {
		c.metrics.CorrelationsOK.Add(1)
	}
	return res, nil
}

func (c *Correlator) correlate(ctx context.Context, doc string) (WeightResult, error) {
	doc, err := c.ValidateDoc(doc)
	if err != nil {
		return WeightResult{}, err
	}
	snapshotID, width, length, ok := c.store.Measurement()
	if !ok {
		return WeightResult{}, ErrNoMeasurement
	}

	cages, err := c.remote.FetchCages(ctx)
	if err != nil {
		return WeightResult{}, fmt.Errorf("resolve %s: %w", doc, err)
	}
	sampling, ok := FindSampling(cages, doc)
	if !ok {
		return WeightResult{}, fmt.Errorf("%w: %s", ErrIdentifierNotFound, doc)
	}
	logger.Debug("Correlator", "%s resolved to sampling %d", doc, sampling.ID)

	res, err := c.remote.ComputeWeight(ctx, WeightRequest{
		SamplingID: sampling.ID,
		Doc:        doc,
		Width:      width,
		Height:     length,
	})
	if err != nil {
		return WeightResult{}, fmt.Errorf("weight for %s: %w", doc, err)
	}

	// The fish may have been replaced while the request was in flight.
	if _, err := c.store.SetWeightFor(snapshotID, res.WeightG); err != nil {
		return WeightResult{}, fmt.Errorf("weight for %s: %w", doc, err)
	}
	logger.Info("Correlator", "%s: %.2fin x %.2fin -> %.3fg (sample %s, %d remaining)",
		doc, width, length, res.WeightG, res.SampleNo, res.RemainingSamples)
	return res, nil
}

// FindSampling returns the first sampling carrying doc, in cage order
func FindSampling(cages []Cage, doc string) (SamplingRecord, bool) {
	for _, cage := range cages {
		for _, s := range cage.Samplings {
			if s.Doc == doc {
				return s, true
			}
		}
	}
	return SamplingRecord{}, false
}
