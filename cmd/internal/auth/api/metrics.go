package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_auth_login_attempts_total",
		Help: "Login attempts by outcome (success or failure).",
	}, []string{"outcome"})

	refreshRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_auth_refresh_rotations_total",
		Help: "Successful refresh-token rotations.",
	})

	refreshRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_auth_refresh_rejections_total",
		Help: "Refresh attempts rejected (unknown, revoked, or expired secrets).",
	})

	tokenRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_auth_token_rejections_total",
		Help: "Bearer tokens rejected during request authentication.",
	})

	passwordChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_auth_password_changes_total",
		Help: "Successful password changes.",
	})
)
