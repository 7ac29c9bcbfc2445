package api

import (
	"errors"
	"strings"
	"time"

	models "OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/internal/service/marketdata"
	"OptEdge/internal/service/ratelimit"
	mlmodels "OptEdge/internal/services/models"
	"OptEdge/internal/usecase"
	xhttp "OptEdge/pkg/http"
	xlogger "OptEdge/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RateLimit tunes the per-client token bucket on prediction endpoints.
type RateLimit struct {
	PerSec float64
	Burst  float64
}

// PredictEchoHandler exposes the prediction pipeline over HTTP.
type PredictEchoHandler struct {
	logger    *xlogger.Logger
	predictor *usecase.Predictor
	resolver  *marketdata.Resolver
	rl        *ratelimit.Limiter
	limit     RateLimit
	interval  domrepo.Interval
}

func NewPredictEchoHandler(
	logger *xlogger.Logger,
	predictor *usecase.Predictor,
	resolver *marketdata.Resolver,
	limit RateLimit,
	interval domrepo.Interval,
) *PredictEchoHandler {
	if limit.PerSec <= 0 {
		limit.PerSec = 10
	}
	if limit.Burst <= 0 {
		limit.Burst = 20
	}
	return &PredictEchoHandler{
		logger:    logger,
		predictor: predictor,
		resolver:  resolver,
		rl:        ratelimit.New(),
		limit:     limit,
		interval:  domrepo.NormalizeInterval(string(interval)),
	}
}

func (h *PredictEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.POST("/predict/batch", h.PredictBatch)
	g.GET("/market/:symbol", h.Market)
	e.GET("/healthz", h.Health)
}

func (h *PredictEchoHandler) Predict(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":predict", h.limit.Burst, h.limit.PerSec) {
		return xhttp.TooManyRequestsResponse(c)
	}

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.predictor.Predict(c.Request().Context(), req.Order())
	if err != nil {
		h.logger.Error("predict usecase error",
			xlogger.String("symbol", req.Symbol),
			xlogger.String("strategy", req.Strategy),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, predictAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictEchoHandler) PredictBatch(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":batch", h.limit.Burst, h.limit.PerSec) {
		return xhttp.TooManyRequestsResponse(c)
	}

	req := &models.BatchPredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	orders := make([]models.Order, len(req.Requests))
	for i := range req.Requests {
		orders[i] = req.Requests[i].Order()
	}

	entries, err := h.predictor.PredictBatch(c.Request().Context(), orders, req.Share())
	if err != nil {
		h.logger.Error("predict batch usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, predictAppError(err))
	}
	return xhttp.SuccessResponse(c, models.BatchPredictResponse{Predictions: entries})
}

// Market exposes the resolver directly for diagnostics: current quote, bar
// history and the volatility index.
func (h *PredictEchoHandler) Market(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}
	count := xhttp.ParseIntDefault(c.QueryParam("bars"), 50)
	interval := h.interval
	if raw := c.QueryParam("interval"); raw != "" {
		interval = domrepo.NormalizeInterval(raw)
	}

	ctx := c.Request().Context()
	bars := h.resolver.GetBars(ctx, symbol, count, interval)

	// Optional from/to window (RFC3339 or unix seconds), aligned to bar
	// boundaries before filtering.
	if fromRaw, toRaw := c.QueryParam("from"), c.QueryParam("to"); fromRaw != "" || toRaw != "" {
		from := xhttp.ParseTimeDefault(fromRaw, time.Time{})
		to := xhttp.ParseTimeDefault(toRaw, time.Now())
		from, to = xhttp.AlignRange(from, to, interval.Duration())
		bars = barsWithin(bars, from, to)
	}

	out := map[string]interface{}{
		"quote": h.resolver.GetQuote(ctx, symbol),
		"bars":  bars,
		"vix":   h.resolver.GetVix(ctx),
	}
	return xhttp.SuccessResponse(c, out)
}

// barsWithin keeps bars whose open time falls inside [from, to].
func barsWithin(bars []models.Bar, from, to time.Time) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Time.Before(from) || b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (h *PredictEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// predictAppError maps pipeline failures onto HTTP statuses. Missing models
// are the caller's addressing problem (404); a narrow vector means the
// request can never succeed against the loaded artifact (422).
func predictAppError(err error) error {
	switch {
	case errors.Is(err, mlmodels.ErrNoModelAvailable):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, mlmodels.ErrFeatureMismatch):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("prediction failed").WithError(err)
	}
}
