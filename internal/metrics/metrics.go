// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DLTPacketsTotal counts successful datalink operations per plugin.
	DLTPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpedit_dlt_packets_total",
			Help: "Total number of packets handled by a datalink plugin",
		},
		[]string{"plugin", "op"},
	)

	// DLTErrorsTotal counts failed datalink operations per plugin.
	DLTErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpedit_dlt_errors_total",
			Help: "Total number of failed datalink operations per plugin",
		},
		[]string{"plugin", "op"},
	)

	// RewritePacketsTotal counts packets by outcome in the rewrite driver.
	RewritePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcpedit_rewrite_packets_total",
			Help: "Total number of packets read by the rewrite driver, by outcome",
		},
		[]string{"outcome"},
	)
)

// Operation labels
const (
	OpDecode = "decode"
	OpEncode = "encode"
	OpProto  = "proto"
	OpL2Len  = "l2len"
	OpLayer3 = "get_layer3"
	OpMerge  = "merge_layer3"
)

// Rewrite outcomes
const (
	OutcomeWritten  = "written"
	OutcomeSkipped  = "skipped"
	OutcomeFiltered = "filtered"
)
