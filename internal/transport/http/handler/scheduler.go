package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/repository"
	"github.com/abakirov/outdialer/internal/usecase"
)

type SchedulerHandler struct {
	uc     *usecase.SchedulerUsecase
	logger *slog.Logger
}

func NewSchedulerHandler(uc *usecase.SchedulerUsecase, logger *slog.Logger) *SchedulerHandler {
	return &SchedulerHandler{uc: uc, logger: logger.With("component", "scheduler_handler")}
}

type configResponse struct {
	Enabled                bool      `json:"enabled"`
	DailyRunTime           string    `json:"daily_run_time"`
	LookaheadDays          int       `json:"lookahead_days"`
	MaxCallsPerDay         int       `json:"max_calls_per_day"`
	MaxConcurrentCalls     int       `json:"max_concurrent_calls"`
	SkipIfCalledWithinDays int       `json:"skip_if_called_within_days"`
	RetryDelaySeconds      int       `json:"retry_delay_seconds"`
	MaxRetries             int       `json:"max_retries"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func toConfigResponse(cfg *domain.SchedulerConfig) configResponse {
	return configResponse{
		Enabled:                cfg.Enabled,
		DailyRunTime:           cfg.DailyRunTime,
		LookaheadDays:          cfg.LookaheadDays,
		MaxCallsPerDay:         cfg.MaxCallsPerDay,
		MaxConcurrentCalls:     cfg.MaxConcurrentCalls,
		SkipIfCalledWithinDays: cfg.SkipIfCalledWithinDays,
		RetryDelaySeconds:      cfg.RetryDelaySeconds,
		MaxRetries:             cfg.MaxRetries,
		UpdatedAt:              cfg.UpdatedAt,
	}
}

func (h *SchedulerHandler) GetConfig(ctx *gin.Context) {
	cfg, err := h.uc.GetConfig(ctx.Request.Context())
	if err != nil {
		h.logger.Error("get config", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, toConfigResponse(cfg))
}

type updateConfigRequest struct {
	Enabled                *bool   `json:"enabled"`
	DailyRunTime           *string `json:"daily_run_time"`
	LookaheadDays          *int    `json:"lookahead_days"`
	MaxCallsPerDay         *int    `json:"max_calls_per_day"`
	MaxConcurrentCalls     *int    `json:"max_concurrent_calls"`
	SkipIfCalledWithinDays *int    `json:"skip_if_called_within_days"`
	RetryDelaySeconds      *int    `json:"retry_delay_seconds"`
	MaxRetries             *int    `json:"max_retries"`
}

func (h *SchedulerHandler) UpdateConfig(ctx *gin.Context) {
	var req updateConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.uc.UpdateConfig(ctx.Request.Context(), domain.SchedulerConfigPatch{
		Enabled:                req.Enabled,
		DailyRunTime:           req.DailyRunTime,
		LookaheadDays:          req.LookaheadDays,
		MaxCallsPerDay:         req.MaxCallsPerDay,
		MaxConcurrentCalls:     req.MaxConcurrentCalls,
		SkipIfCalledWithinDays: req.SkipIfCalledWithinDays,
		RetryDelaySeconds:      req.RetryDelaySeconds,
		MaxRetries:             req.MaxRetries,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConfigInvalid) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("update config", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, toConfigResponse(cfg))
}

type pendingCustomerResponse struct {
	CustomerID    string     `json:"customer_id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	PolicyRef     string     `json:"policy_ref"`
	PolicyEndDate time.Time  `json:"policy_end_date"`
	DaysToExpiry  int        `json:"days_to_expiry"`
	LastCallAt    *time.Time `json:"last_call_at,omitempty"`
	CallCount     int        `json:"call_count"`
}

type pendingCustomersQuery struct {
	Days  int `form:"days" binding:"min=0"`
	Limit int `form:"limit" binding:"min=0"`
}

func (h *SchedulerHandler) PendingCustomers(ctx *gin.Context) {
	var q pendingCustomersQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidates, err := h.uc.PendingCustomers(ctx.Request.Context(), q.Days, q.Limit)
	if err != nil {
		h.logger.Error("pending customers", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]pendingCustomerResponse, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, pendingCustomerResponse{
			CustomerID:    c.CustomerID,
			Name:          c.Name,
			Phone:         c.Phone,
			PolicyRef:     c.PolicyRef,
			PolicyEndDate: c.PolicyEndDate,
			DaysToExpiry:  c.DaysToExpiry,
			LastCallAt:    c.LastCallAt,
			CallCount:     c.CallCount,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"count": len(out), "customers": out})
}

type scheduledCallResponse struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customer_id"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	PolicyRef     *string       `json:"policy_ref,omitempty"`
	ScheduledDate time.Time     `json:"scheduled_date"`
	Status        domain.Status `json:"status"`
	Reason        domain.Reason `json:"reason"`
	Priority      int           `json:"priority"`
	RetryCount    int           `json:"retry_count"`
	MaxRetries    int           `json:"max_retries"`
	ResultCallRef *string       `json:"result_call_ref,omitempty"`
	LastError     *string       `json:"last_error,omitempty"`
	Notes         *string       `json:"notes,omitempty"`
	ExecutedAt    *time.Time    `json:"executed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func toCallResponse(call *domain.ScheduledCall, name, phone string) scheduledCallResponse {
	return scheduledCallResponse{
		ID:            call.ID,
		CustomerID:    call.CustomerID,
		CustomerName:  name,
		CustomerPhone: phone,
		PolicyRef:     call.PolicyRef,
		ScheduledDate: call.ScheduledDate,
		Status:        call.Status,
		Reason:        call.Reason,
		Priority:      call.Priority,
		RetryCount:    call.RetryCount,
		MaxRetries:    call.MaxRetries,
		ResultCallRef: call.ResultCallRef,
		LastError:     call.LastError,
		Notes:         call.Notes,
		ExecutedAt:    call.ExecutedAt,
		CreatedAt:     call.CreatedAt,
		UpdatedAt:     call.UpdatedAt,
	}
}

type listCallsQuery struct {
	Date       string `form:"date"`
	Status     string `form:"status"`
	CustomerID string `form:"customer_id"`
	Limit      int    `form:"limit,default=100"`
}

func (h *SchedulerHandler) ListCalls(ctx *gin.Context) {
	var q listCallsQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := repository.ListCallsInput{CustomerID: q.CustomerID, Limit: q.Limit}
	if q.Date != "" {
		date, err := time.Parse("2006-01-02", q.Date)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errBadDate})
			return
		}
		input.Date = &date
	}
	if q.Status != "" {
		status := domain.Status(q.Status)
		if !status.Valid() {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errBadStatus})
			return
		}
		input.Status = status
	}

	rows, err := h.uc.ListCalls(ctx.Request.Context(), input)
	if err != nil {
		h.logger.Error("list calls", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	out := make([]scheduledCallResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCallResponse(&row.ScheduledCall, row.CustomerName, row.CustomerPhone))
	}
	ctx.JSON(http.StatusOK, gin.H{"count": len(out), "calls": out})
}

type createCallRequest struct {
	CustomerID    string  `json:"customer_id" binding:"required"`
	PolicyRef     *string `json:"policy_ref"`
	ScheduledDate string  `json:"scheduled_date"`
	Reason        string  `json:"reason"`
	Priority      int     `json:"priority"`
	Notes         *string `json:"notes"`
}

func (h *SchedulerHandler) CreateCall(ctx *gin.Context) {
	var req createCallRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := usecase.ScheduleCallInput{
		CustomerID: req.CustomerID,
		PolicyRef:  req.PolicyRef,
		Reason:     domain.Reason(req.Reason),
		Priority:   req.Priority,
		Notes:      req.Notes,
	}
	if req.ScheduledDate != "" {
		date, err := time.Parse("2006-01-02", req.ScheduledDate)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errBadDate})
			return
		}
		input.ScheduledDate = date
	}

	call, err := h.uc.ScheduleCall(ctx.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidReason):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errBadReason})
		case errors.Is(err, domain.ErrAlreadyScheduled):
			ctx.JSON(http.StatusConflict, gin.H{"error": errAlreadyScheduled})
		default:
			h.logger.Error("create call", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}
	ctx.JSON(http.StatusCreated, toCallResponse(call, "", ""))
}

func (h *SchedulerHandler) CancelCall(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.CancelCall(ctx.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrCallNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errCallNotFound})
		case errors.Is(err, domain.ErrInvalidState):
			ctx.JSON(http.StatusConflict, gin.H{"error": errAlreadyExecuted})
		default:
			h.logger.Error("cancel call", "call_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": id, "status": domain.StatusCancelled})
}

func (h *SchedulerHandler) Stats(ctx *gin.Context) {
	date := time.Now()
	if raw := ctx.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errBadDate})
			return
		}
		date = parsed
	}

	out, err := h.uc.Stats(ctx.Request.Context(), date)
	if err != nil {
		h.logger.Error("stats", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, statsResponse{
		Date:        out.Date.Format("2006-01-02"),
		Scheduled:   out.Scheduled,
		Completed:   out.Completed,
		Failed:      out.Failed,
		Pending:     out.Pending,
		Queued:      out.Queued,
		Cancelled:   out.Cancelled,
		Backlog:     out.Backlog,
		Enabled:     out.Enabled,
		NextRunTime: out.NextRunTime,
	})
}

type statsResponse struct {
	Date        string     `json:"date"`
	Scheduled   int        `json:"scheduled"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	Pending     int        `json:"pending"`
	Queued      int        `json:"queued"`
	Cancelled   int        `json:"cancelled"`
	Backlog     int        `json:"backlog"`
	Enabled     bool       `json:"scheduler_enabled"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
}

type triggerNowQuery struct {
	Days     int `form:"days" binding:"min=0"`
	MaxCalls int `form:"max_calls" binding:"min=0"`
}

func (h *SchedulerHandler) TriggerNow(ctx *gin.Context) {
	var q triggerNowQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.uc.TriggerNow(ctx.Request.Context(), q.Days, q.MaxCalls)
	if err != nil {
		h.logger.Error("trigger now", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusAccepted, summary)
}

type cleanupQuery struct {
	OlderThanDays int `form:"older_than_days,default=90" binding:"min=1"`
}

func (h *SchedulerHandler) Cleanup(ctx *gin.Context) {
	var q cleanupQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.uc.Cleanup(ctx.Request.Context(), q.OlderThanDays)
	if err != nil {
		h.logger.Error("cleanup", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": deleted, "older_than_days": q.OlderThanDays})
}
