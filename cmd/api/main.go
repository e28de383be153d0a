package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/bank-importer/internal/api/handlers"
	"github.com/dvloznov/bank-importer/internal/api/middleware"
	"github.com/dvloznov/bank-importer/internal/categorize"
	"github.com/dvloznov/bank-importer/internal/extraction"
	"github.com/dvloznov/bank-importer/internal/gcsdocs"
	"github.com/dvloznov/bank-importer/internal/importer"
	infraBQ "github.com/dvloznov/bank-importer/internal/infra/bigquery"
	"github.com/dvloznov/bank-importer/internal/invoices"
	"github.com/dvloznov/bank-importer/internal/jobs/inmemory"
	"github.com/dvloznov/bank-importer/internal/logger"
	"github.com/dvloznov/bank-importer/internal/matching"
)

func main() {
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		project = flag.String("project", os.Getenv("BQ_PROJECT"), "BigQuery project ID (or set BQ_PROJECT env)")
		dataset = flag.String("dataset", envOr("BQ_DATASET", "imports"), "BigQuery dataset (or set BQ_DATASET env)")
		bucket  = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name for invoice documents (or set GCS_BUCKET env)")
		model   = flag.String("model", os.Getenv("EXTRACTION_MODEL"), "Gemini model for invoice extraction (or set EXTRACTION_MODEL env)")
	)
	flag.Parse()

	log := logger.New()
	ctx := context.Background()

	bqClient, err := infraBQ.NewClient(ctx, infraBQ.Config{ProjectID: *project, Dataset: *dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer bqClient.Close()

	importStore := infraBQ.NewImportStore(bqClient)
	transactionStore := infraBQ.NewTransactionStore(bqClient)
	categoryStore := infraBQ.NewCategoryStore(bqClient)
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

	categorizer := categorize.New(categoryStore, log)
	importSvc := importer.NewService(importStore, transactionStore, categorizer, log)
	invoiceSvc := invoices.NewService(invoiceStore, docs, extractor, jobQueue, log)
	matcher := matching.NewMatcher(transactionStore, invoiceStore, log)

	// Extraction jobs run in-process; the queue hands them straight to
	// the invoice service.
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting extraction worker")
		if err := jobQueue.Start(workerCtx, invoiceSvc.HandleJob); err != nil {
			log.Error().Err(err).Msg("Extraction worker stopped with error")
		}
	}()

	importsHandler := handlers.NewImportsHandler(importSvc, log)
	invoicesHandler := handlers.NewInvoicesHandler(invoiceSvc, matcher, log)
	categoriesHandler := handlers.NewCategoriesHandler(categoryStore, log)

	mux := http.NewServeMux()

	// Imports endpoints
	mux.HandleFunc("/api/imports", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			importsHandler.Create(w, r)
		case http.MethodGet:
			importsHandler.History(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/imports/", func(w http.ResponseWriter, r *http.Request) {
		importID, action := splitResourcePath(r.URL.Path, "/api/imports/")
		if importID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Import ID is required")
			return
		}

		switch {
		case r.Method == http.MethodGet && action == "preview":
			importsHandler.Preview(w, r, importID)
		case r.Method == http.MethodPost && action == "confirm":
			importsHandler.Confirm(w, r, importID)
		case r.Method == http.MethodDelete && action == "":
			importsHandler.Cancel(w, r, importID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Invoices endpoints
	mux.HandleFunc("/api/invoices", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			invoicesHandler.Register(w, r)
		case http.MethodGet:
			invoicesHandler.List(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/invoices/", func(w http.ResponseWriter, r *http.Request) {
		invoiceID, action := splitResourcePath(r.URL.Path, "/api/invoices/")
		if invoiceID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Invoice ID is required")
			return
		}
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		switch action {
		case "extract":
			invoicesHandler.Extract(w, r, invoiceID)
		case "link":
			invoicesHandler.Link(w, r, invoiceID)
		case "unlink":
			invoicesHandler.Unlink(w, r, invoiceID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Unknown action")
		}
	})

	// Transactions endpoints
	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		transactionID, action := splitResourcePath(r.URL.Path, "/api/transactions/")
		if transactionID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}

		if r.Method == http.MethodGet && action == "suggestions" {
			invoicesHandler.Suggestions(w, r, transactionID)
			return
		}
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Categories endpoints
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			categoriesHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Owner(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight extractions
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitResourcePath splits "/api/imports/{id}/{action}" into id and
// action. Action is "" for the bare resource path.
func splitResourcePath(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
