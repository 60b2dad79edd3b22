package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blobOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skiff_blob_ops_total",
		Help: "Blob store operations served, by operation.",
	}, []string{"op"})

	logOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skiff_log_ops_total",
		Help: "Log store operations served, by operation.",
	}, []string{"op"})

	fileOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skiff_file_ops_total",
		Help: "File API operations served, by operation.",
	}, []string{"op"})

	tenantOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skiff_tenant_ops_total",
		Help: "Tenant registry operations served, by operation.",
	}, []string{"op"})
)
