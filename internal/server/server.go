// Package server exposes the check-in controls over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/ledger"
	"github.com/loykin/checkin/internal/scheduler"
	"github.com/loykin/checkin/pkg/router"
	"github.com/loykin/checkin/pkg/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the control endpoints.
type Handler struct {
	Scheduler *scheduler.Scheduler
	Ledger    *ledger.Ledger
	// Gatherer backs /metrics; nil uses the default gatherer.
	Gatherer prometheus.Gatherer
	Logger   *common.Logger
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r *router.Router) {
	gatherer := h.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle(http.MethodGet, "/healthz", h.healthz)
	r.Handle(http.MethodGet, "/summary", h.summary)
	r.Handle(http.MethodPost, "/run", h.run)
	r.Handle(http.MethodDelete, "/ledger", h.clear)
	r.MountHandler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func (h *Handler) log() *common.Logger {
	if h.Logger == nil {
		return common.Discard().WithComponent("server")
	}
	return h.Logger.WithComponent("server")
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) summary(c *gin.Context) {
	info, err := status.FromLedger(c.Request.Context(), h.Ledger, c.Query("date"))
	if err != nil {
		h.log().Error("failed to read summary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func boolQuery(c *gin.Context, key string) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func (h *Handler) run(c *gin.Context) {
	force, err := boolQuery(c, "force")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid force"})
		return
	}
	ignore, err := boolQuery(c, "ignore_backoff")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ignore_backoff"})
		return
	}
	opts := scheduler.Options{Site: c.Query("site"), Force: force, IgnoreBackoff: ignore}

	// a started cycle runs to completion even if the client goes away
	report, err := h.Scheduler.Run(context.WithoutCancel(c.Request.Context()), opts)
	if errors.Is(err, scheduler.ErrUnknownSite) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log().Error("check-in cycle failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) clear(c *gin.Context) {
	ctx := c.Request.Context()
	date := c.Query("date")
	if date == "" {
		date = h.Ledger.Today()
	}
	keep, err := boolQuery(c, "keep_count")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid keep_count"})
		return
	}
	if site := c.Query("site"); site != "" {
		err = h.Ledger.Clear(ctx, date, site, keep)
	} else {
		err = h.Ledger.ClearDate(ctx, date)
	}
	if err != nil {
		h.log().Error("failed to clear ledger", "error", err, "date", date)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.log().Info("ledger cleared", "date", date, "site", c.Query("site"), "keep_count", keep)
	c.Status(http.StatusNoContent)
}
