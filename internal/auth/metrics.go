// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the credential core.
var (
	// registrationsTotal counts successfully created accounts.
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veridian_registrations_total",
		Help: "Total number of accounts created",
	})

	// loginsTotal counts login attempts by outcome.
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veridian_logins_total",
		Help: "Total number of login attempts by result",
	}, []string{"result"})

	// revocationsTotal counts refresh token revocations by outcome.
	revocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veridian_token_revocations_total",
		Help: "Total number of refresh token revocation attempts by result",
	}, []string{"result"})
)

// RecordRegistration increments the registration counter.
func RecordRegistration() {
	registrationsTotal.Inc()
}

// RecordLogin records a login attempt outcome.
func RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// RecordRevocation records a refresh token revocation outcome.
func RecordRevocation(result string) {
	revocationsTotal.WithLabelValues(result).Inc()
}
