package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/learning"
	"TradePilot/internal/progression"
	"TradePilot/internal/usecase"
	xhttp "TradePilot/pkg/http"
	xlogger "TradePilot/pkg/logger"
)

// TradingHandler exposes the pipeline over HTTP: on-demand decisions,
// the technical snapshot, and the learning views. Decision requests are
// dry runs; only the cycle places orders.
type TradingHandler struct {
	logger *xlogger.Logger
	cycle  *usecase.Cycle
	store  *learning.Store
	ladder *progression.Tracker
}

func NewTradingHandler(logger *xlogger.Logger, cycle *usecase.Cycle, store *learning.Store, ladder *progression.Tracker) *TradingHandler {
	return &TradingHandler{logger: logger, cycle: cycle, store: store, ladder: ladder}
}

func (h *TradingHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/decision", h.Decision)
	g.GET("/analysis", h.Analysis)
	g.GET("/learning/summary", h.LearningSummary)
	g.GET("/learning/trades", h.Trades)
	g.GET("/learning/pattern", h.PatternStat)
	g.GET("/learning/context", h.ContextStat)
	g.GET("/progress", h.Progress)
}

func (h *TradingHandler) Decision(c echo.Context) error {
	req := &models.DecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	decision, tech, err := h.cycle.EvaluateLive(c.Request().Context(), req.Asset)
	if err != nil {
		h.logger.Error("decision evaluation error",
			xlogger.String("asset", req.Asset), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"decision":  decision,
		"technical": tech,
	})
}

func (h *TradingHandler) Analysis(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	tech, err := h.cycle.Analysis(c.Request().Context(), req.Asset, req.Count)
	if err != nil {
		h.logger.Error("analysis error",
			xlogger.String("asset", req.Asset), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, tech)
}

func (h *TradingHandler) LearningSummary(c echo.Context) error {
	sum, err := h.store.Summary(c.Request().Context())
	if err != nil {
		h.logger.Error("learning summary error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, sum)
}

func (h *TradingHandler) Trades(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 50)
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Time{})

	trades, err := h.store.Trades(c.Request().Context(), since, limit)
	if err != nil {
		h.logger.Error("trade list error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, trades)
}

func (h *TradingHandler) PatternStat(c echo.Context) error {
	req := &models.PatternStatRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	stat, ok, err := h.store.PatternStat(c.Request().Context(), req.Name)
	if err != nil {
		h.logger.Error("pattern stat error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if !ok {
		return xhttp.NotFoundResponse(c, "no closed trades for pattern "+req.Name)
	}
	return xhttp.SuccessResponse(c, stat)
}

func (h *TradingHandler) ContextStat(c echo.Context) error {
	req := &models.ContextStatRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	edge, err := h.store.Edge(c.Request().Context(), req.Label)
	if err != nil {
		h.logger.Error("context edge error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, edge)
}

func (h *TradingHandler) Progress(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ladder.Snapshot())
}
