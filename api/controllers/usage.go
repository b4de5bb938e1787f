package controllers

import (
	"net/http"
	"time"

	"github.com/clipblaze/clipblaze-backend/api/responses"
	"github.com/clipblaze/clipblaze-backend/internal/quota"
	"github.com/clipblaze/clipblaze-backend/pkg/enums"
	pkgerrors "github.com/clipblaze/clipblaze-backend/pkg/errors"
	"github.com/clipblaze/clipblaze-backend/pkg/logger"
)

type usageResponse struct {
	Plan           enums.PlanTier `json:"plan"`
	ClipsLimit     int            `json:"clips_limit"`
	ClipsUsed      int            `json:"clips_used"`
	ClipsRemaining int            `json:"clips_remaining"`
	PeriodStart    time.Time      `json:"period_start"`
	PeriodEnd      time.Time      `json:"period_end"`
}

// Usage returns the caller's plan quota snapshot.
func Usage(svc quota.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quota service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Usage(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		remaining := sub.ClipsLimit - sub.ClipsUsed
		if sub.ClipsLimit < 0 {
			remaining = enums.UnlimitedClips
		} else if remaining < 0 {
			remaining = 0
		}

		responses.WriteSuccess(w, usageResponse{
			Plan:           sub.Plan,
			ClipsLimit:     sub.ClipsLimit,
			ClipsUsed:      sub.ClipsUsed,
			ClipsRemaining: remaining,
			PeriodStart:    sub.PeriodStart,
			PeriodEnd:      sub.PeriodEnd,
		})
	}
}
