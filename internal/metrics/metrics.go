package metrics

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// AuthAttempts counts register/login outcomes (success, conflict, invalid, rejected, error).
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Register and login attempts by outcome",
		},
		[]string{"action", "result"},
	)

	// TokenRejections counts bearer tokens refused by the auth guard by reason (missing, invalid, expired).
	TokenRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_rejections_total",
			Help: "Bearer tokens rejected by reason",
		},
		[]string{"reason"},
	)

	// ProductMutations counts successful catalog writes by operation (create, update, delete).
	ProductMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_product_mutations_total",
			Help: "Successful product writes by operation",
		},
		[]string{"op"},
	)

	// ImagesStored counts uploaded images persisted to the image store.
	ImagesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_images_stored_total",
			Help: "Uploaded product images written to storage",
		},
	)

	// ImagesSwept counts orphaned images removed by the upload sweeper.
	ImagesSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_images_swept_total",
			Help: "Unreferenced product images removed by the sweeper",
		},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	uploadPath         = regexp.MustCompile(`^/uploads/.+`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestDuration, RequestTotal,
			AuthAttempts, TokenRejections,
			ProductMutations, ImagesStored, ImagesSwept,
		)
	})
}

// NormalizePath reduces cardinality by replacing numeric path segments with {id}
// and collapsing uploaded file names. E.g. /products/123 -> /products/{id},
// /uploads/1700000000000-ab12cd34.png -> /uploads/{name}.
func NormalizePath(path string) string {
	if uploadPath.MatchString(path) {
		return "/uploads/{name}"
	}
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// IncAuthAttempt records the outcome of a register or login call.
func IncAuthAttempt(action, result string) {
	AuthAttempts.WithLabelValues(action, result).Inc()
}

// IncTokenRejection records a bearer token refused by the auth guard.
func IncTokenRejection(reason string) {
	TokenRejections.WithLabelValues(reason).Inc()
}

// IncProductMutation records a successful create, update or delete.
func IncProductMutation(op string) {
	ProductMutations.WithLabelValues(op).Inc()
}

// IncImagesStored records one uploaded image written to storage.
func IncImagesStored() {
	ImagesStored.Inc()
}

// AddImagesSwept records n orphaned images removed in one sweep.
func AddImagesSwept(n int) {
	ImagesSwept.Add(float64(n))
}
