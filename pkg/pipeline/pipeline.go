package pipeline

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"webharvest/pkg/archive"
	"webharvest/pkg/config"
	"webharvest/pkg/extract"
	"webharvest/pkg/filter"
	"webharvest/pkg/models"
)

// Pipeline runs the extraction stage: every content record of every sealed
// segment is extracted, filtered, and written to the sink. Segments are
// processed in parallel, one task per segment; within a segment, records are
// handled in archive order. A segment that cannot be opened is reported and
// skipped; everything else keeps going.
type Pipeline struct {
	cfg    config.ExtractConfig
	sink   *DocumentSink
	filter *filter.RepetitionFilter
	log    *logrus.Entry
}

func New(cfg config.ExtractConfig, sink *DocumentSink, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		sink:   sink,
		filter: filter.FromConfig(cfg.Thresholds),
		log:    log,
	}
}

type counters struct {
	segments         atomic.Int64
	segmentsFailed   atomic.Int64
	extracted        atomic.Int64
	extractionFailed atomic.Int64
	accepted         atomic.Int64
	rejected         atomic.Int64
}

// Run processes every segment under segmentDir. The returned error is
// non-nil only for environment failures (unreadable segment dir, sink write
// errors); per-record and per-segment problems are counted in the summary
// instead, and cancellation is a clean early stop.
func (p *Pipeline) Run(ctx context.Context, segmentDir string) (models.ExtractSummary, error) {
	var summary models.ExtractSummary

	segments, err := archive.ListSegments(segmentDir)
	if err != nil {
		return summary, err
	}
	if len(segments) == 0 {
		p.log.WithField("dir", segmentDir).Warn("No archive segments found")
		return summary, nil
	}

	if err := extract.InitTokenizer(p.cfg.TokenizerEncoding); err != nil {
		p.log.Warnf("Tokenizer unavailable, token counts will be omitted: %v", err)
	}

	tasks := p.cfg.Tasks
	if tasks <= 0 {
		tasks = config.DefaultExtractTasks
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tasks)

	for _, segPath := range segments {
		g.Go(func() error {
			return p.processSegment(gctx, segPath, &c)
		})
	}
	err = g.Wait()
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Interruption mirrors the crawl contract: a clean early stop.
		// Every shard written so far is a valid prefix.
		p.log.Info("Extraction interrupted; completed shards are valid")
		err = nil
	}

	summary = models.ExtractSummary{
		Segments:         int(c.segments.Load()),
		SegmentsFailed:   int(c.segmentsFailed.Load()),
		Extracted:        int(c.extracted.Load()),
		ExtractionFailed: int(c.extractionFailed.Load()),
		Accepted:         int(c.accepted.Load()),
		Rejected:         int(c.rejected.Load()),
	}
	p.log.WithFields(logrus.Fields{
		"segments":          summary.Segments,
		"segments_failed":   summary.SegmentsFailed,
		"extracted":         summary.Extracted,
		"extraction_failed": summary.ExtractionFailed,
		"accepted":          summary.Accepted,
		"rejected":          summary.Rejected,
	}).Info("Extraction finished")
	return summary, err
}

func (p *Pipeline) processSegment(ctx context.Context, segPath string, c *counters) error {
	segLog := p.log.WithField("segment", segPath)

	reader, err := archive.OpenSegment(segPath)
	if err != nil {
		// One unreadable segment must not sink the batch.
		segLog.Errorf("Skipping unreadable segment: %v", err)
		c.segmentsFailed.Add(1)
		return nil
	}
	defer reader.Close()

	shard := p.sink.NewShard(segPath)
	defer shard.Close()

	extractor := extract.NewExtractor()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A torn record ends this segment; what was read stands.
			segLog.Errorf("Stopping segment on read error: %v", err)
			c.segmentsFailed.Add(1)
			return nil
		}
		if rec.Kind != models.KindContent {
			continue
		}

		doc, err := extractor.Extract(rec)
		if err != nil {
			segLog.WithField("url", rec.TargetURI).Debugf("Extraction failed: %v", err)
			c.extractionFailed.Add(1)
			continue
		}
		c.extracted.Add(1)

		if n := extract.CountTokens(doc.Text); n >= 0 {
			doc.Metadata.TokenCount = n
		}

		verdict := p.filter.Check(doc)
		switch verdict.Decision {
		case models.DecisionAccepted:
			if err := shard.WriteAccepted(doc); err != nil {
				return err
			}
			c.accepted.Add(1)
		case models.DecisionRejected:
			if err := shard.WriteRejected(doc, verdict.Reason); err != nil {
				return err
			}
			c.rejected.Add(1)
		}
	}

	c.segments.Add(1)
	if err := shard.Close(); err != nil {
		return err
	}
	return nil
}
