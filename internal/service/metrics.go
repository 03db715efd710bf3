package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders persisted by CreateOrder",
		},
	)

	statusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Total number of committed order status transitions",
		},
		[]string{"from", "to"},
	)

	stockReservationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_stock_reservation_failures_total",
			Help: "Total number of stock reservations that failed after the order was persisted",
		},
	)

	documentGenerationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_document_generation_failures_total",
			Help: "Total number of failed proforma and invoice generations",
		},
		[]string{"kind"},
	)
)
