// Package metrics holds the Prometheus collectors shared by the store, the
// upload relay and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Images is the number of images currently held by the store.
	Images = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imagestore_images",
			Help: "Number of images in the local store",
		},
	)

	// Operations counts store operations by outcome.
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagestore_operations_total",
			Help: "Local store operations",
		},
		[]string{"operation", "result"},
	)

	// Uploads counts finished uploads by response status, "error" for
	// transport failures.
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagestore_uploads_total",
			Help: "Finished uploads by response status",
		},
		[]string{"status"},
	)

	// UploadBusy is the number of upload sessions that are still busy,
	// settle delay included.
	UploadBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imagestore_upload_busy",
			Help: "Upload sessions currently busy",
		},
	)
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func StatusLabel(statusCode int, err error) string {
	if err != nil {
		return "error"
	}
	return strconv.Itoa(statusCode)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
