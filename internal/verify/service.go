// Package verify checks that a completed transformation produced a usable
// image. Checks run on a bounded worker pool and never block the editor.
package verify

import (
	"bytes"
	"context"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"go-image-editor/internal/logger"
	"go-image-editor/internal/storage"
	"go-image-editor/pkg/models"
)

// DefaultJobTimeout bounds one verification job
const DefaultJobTimeout = 60 * time.Second

// Option configures a Service
type Option func(*Service)

// WithOCR enables text retention checks
func WithOCR(ocr OCR) Option {
	return func(s *Service) { s.ocr = ocr }
}

// WithThresholds overrides the quality thresholds
func WithThresholds(t Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

// WithJobTimeout overrides DefaultJobTimeout
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// Service verifies result images
type Service struct {
	fetcher    storage.ImageFetcher
	pool       *WorkerPool
	ocr        OCR
	thresholds Thresholds
	timeout    time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

// NewService starts a verification service with the given number of workers
func NewService(fetcher storage.ImageFetcher, workers int, opts ...Option) *Service {
	s := &Service{
		fetcher:    fetcher,
		pool:       NewWorkerPool(workers),
		thresholds: DefaultThresholds(),
		timeout:    DefaultJobTimeout,
		now:        time.Now,
		log:        logger.ForComponent("verify"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool.Start()
	return s
}

// Verify queues a check of resultURL. done receives the report from a worker
// goroutine. It returns false when the job could not be queued.
func (s *Service) Verify(transformationID, originalURL, resultURL string, done func(models.VerificationReport)) bool {
	queued := s.pool.TrySubmit(func() {
		report := s.Run(context.Background(), transformationID, originalURL, resultURL)
		if done != nil {
			done(report)
		}
	})
	if !queued {
		s.log.WithField("transformation_id", transformationID).Warn("Verification queue full, skipping")
	}
	return queued
}

// Run performs one verification synchronously
func (s *Service) Run(ctx context.Context, transformationID, originalURL, resultURL string) models.VerificationReport {
	start := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := models.VerificationReport{
		TransformationID: transformationID,
		ImageURL:         resultURL,
		Timestamp:        start,
	}
	log := s.log.WithFields(logrus.Fields{
		"transformation_id": transformationID,
		"image_url":         resultURL,
	})

	result, err := s.fetcher.Fetch(ctx, resultURL)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch result for verification")
		report.Errors = append(report.Errors, "failed to fetch result: "+err.Error())
		report.ProcessingTimeSec = time.Since(start).Seconds()
		return report
	}

	img, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		report.Errors = append(report.Errors, "failed to decode result: "+err.Error())
	} else {
		report.Metrics = Measure(img)
		report.Quality = Assess(report.Metrics, s.thresholds)
	}

	if s.ocr != nil && originalURL != "" {
		report.TextRetention = s.textRetention(ctx, originalURL, result.Data)
	}

	report.ProcessingTimeSec = time.Since(start).Seconds()
	log.WithFields(logrus.Fields{
		"readable":        report.Quality.Readable,
		"processing_time": report.ProcessingTimeSec,
	}).Info("Verification completed")
	return report
}

func (s *Service) textRetention(ctx context.Context, originalURL string, resultData []byte) *models.TextRetention {
	tr := &models.TextRetention{}

	original, err := s.fetcher.Fetch(ctx, originalURL)
	if err != nil {
		tr.OCRError = "failed to fetch original: " + err.Error()
		return tr
	}
	if tr.OriginalText, err = s.ocr.Text(ctx, original.Data); err != nil {
		tr.OCRError = "ocr on original failed: " + err.Error()
		return tr
	}
	if tr.ResultText, err = s.ocr.Text(ctx, resultData); err != nil {
		tr.OCRError = "ocr on result failed: " + err.Error()
		return tr
	}

	tr.CER = CharacterErrorRate(tr.OriginalText, tr.ResultText)
	tr.WER = WordErrorRate(tr.OriginalText, tr.ResultText)
	return tr
}

// Wait blocks until every queued job has finished
func (s *Service) Wait() {
	s.pool.Wait()
}

// Close stops accepting jobs
func (s *Service) Close() {
	s.pool.Close()
}
