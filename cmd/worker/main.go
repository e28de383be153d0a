package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-importer/internal/extraction"
	"github.com/dvloznov/bank-importer/internal/gcsdocs"
	infraBQ "github.com/dvloznov/bank-importer/internal/infra/bigquery"
	"github.com/dvloznov/bank-importer/internal/invoices"
	"github.com/dvloznov/bank-importer/internal/jobs"
	"github.com/dvloznov/bank-importer/internal/jobs/inmemory"
	"github.com/dvloznov/bank-importer/internal/logger"
)

func main() {
	var (
		project  = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset  = flag.String("dataset", envOr("BQ_DATASET", "imports"), "BigQuery dataset (or set BQ_DATASET env)")
		bucket   = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name for invoice documents (or set GCS_BUCKET env)")
		model    = flag.String("model", os.Getenv("EXTRACTION_MODEL"), "Gemini model for invoice extraction (or set EXTRACTION_MODEL env)")
		interval = flag.Duration("poll-interval", 30*time.Second, "How often to poll for pending extractions")
	)
	flag.Parse()

	log := logger.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bqClient, err := infraBQ.NewClient(ctx, infraBQ.Config{ProjectID: *project, Dataset: *dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer bqClient.Close()

	invoiceStore := infraBQ.NewInvoiceStore(bqClient)

	docs, err := gcsdocs.NewProvider(ctx, *bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document provider")
	}
	defer docs.Close()

	extractor, err := extraction.NewGeminiExtractor(ctx, *model, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	svc := invoices.NewService(invoiceStore, docs, extractor, jobQueue, log)

	log.Info().Msg("Starting extraction worker service")

	if err := jobQueue.Start(ctx, svc.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Poll the invoice store and feed pending extractions into the
	// local queue. The job store dedupes invoices already in flight.
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		for {
			enqueuePending(ctx, log, invoiceStore, jobStore, jobQueue)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	log.Info().Msg("Worker service started, waiting for pending extractions...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

func enqueuePending(ctx context.Context, log zerolog.Logger, store *infraBQ.InvoiceStore, jobStore jobs.JobStore, publisher jobs.Publisher) {
	pending, err := store.ListPendingExtractions(ctx, 20)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending extractions")
		return
	}

	for _, inv := range pending {
		if inFlight(ctx, jobStore, inv.ID) {
			continue
		}

		job := &jobs.ExtractInvoiceJob{
			InvoiceID:  inv.ID,
			OwnerID:    inv.OwnerID,
			DocumentID: inv.DocumentID,
		}
		if err := publisher.PublishExtractInvoice(ctx, job); err != nil {
			log.Error().Err(err).Str("invoice_id", inv.ID).Msg("Failed to enqueue extraction")
			continue
		}
		log.Info().Str("invoice_id", inv.ID).Str("job_id", job.JobID).Msg("Extraction enqueued")
	}
}

// inFlight reports whether a non-terminal job already exists for the
// invoice.
func inFlight(ctx context.Context, store jobs.JobStore, invoiceID string) bool {
	existing, err := store.ListJobs(ctx, jobs.JobFilter{InvoiceID: invoiceID})
	if err != nil {
		return false
	}
	for _, j := range existing {
		switch j.Status {
		case jobs.JobStatusPending, jobs.JobStatusRunning, jobs.JobStatusRetrying:
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
