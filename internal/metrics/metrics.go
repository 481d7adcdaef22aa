package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status de processamento de documento.
const (
	StatusSuccess         = "success"
	StatusParseError      = "parse_error"
	StatusValidationError = "validation_error"
	StatusDBError         = "db_error"
	StatusDuplicate       = "duplicate"
)

var (
	documentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fiscal_documents_processed_total",
			Help: "Quantidade de documentos fiscais processados, por status e origem.",
		},
		[]string{"status", "source"}, // source: xml|zip|ofx|api|entry|cli|sefaz
	)

	documentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fiscal_document_process_duration_seconds",
			Help:    "Tempo de processamento de cada documento em segundos.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "source"},
	)

	validationFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fiscal_validation_findings_total",
			Help: "Apontamentos da validação fiscal, por severidade.",
		},
		[]string{"severity"},
	)

	ofxTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fiscal_ofx_transactions_total",
			Help: "Lançamentos de extrato OFX importados, por status.",
		},
		[]string{"status"}, // new|duplicated|reconciled|rejected
	)

	registerOnce sync.Once
)

// Init registra as métricas no registry global.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(documentsProcessed, documentDuration, validationFindings, ofxTransactions)
	})
}

// ObserveDocument registra o resultado de um documento processado.
func ObserveDocument(status, source string, d time.Duration) {
	labels := prometheus.Labels{
		"status": status,
		"source": source,
	}
	documentsProcessed.With(labels).Inc()
	documentDuration.With(labels).Observe(d.Seconds())
}

func ObserveFindings(errorsCount, warnings, corrections int) {
	validationFindings.WithLabelValues("error").Add(float64(errorsCount))
	validationFindings.WithLabelValues("warning").Add(float64(warnings))
	validationFindings.WithLabelValues("correction").Add(float64(corrections))
}

func ObserveOFX(status string, n int) {
	if n <= 0 {
		return
	}
	ofxTransactions.WithLabelValues(status).Add(float64(n))
}

// Handler expõe o registry global, para montar /metrics em outro servidor.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartHTTPServer sobe um /metrics na porta indicada (ex: ":9101").
func StartHTTPServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		slog.Info("iniciando servidor de métricas Prometheus", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("erro no servidor de métricas", "addr", addr, "err", err)
		}
	}()
}
