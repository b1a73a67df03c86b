package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abakirov/outdialer/internal/domain"
	"github.com/abakirov/outdialer/internal/repository"
	"github.com/abakirov/outdialer/internal/transport/http/handler"
	"github.com/abakirov/outdialer/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCallRepo struct {
	createErr error
	cancelErr error
}

func (s *stubCallRepo) Create(_ context.Context, call *domain.ScheduledCall) (*domain.ScheduledCall, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	out := *call
	out.ID = "sc-1"
	out.CreatedAt = time.Now()
	out.UpdatedAt = out.CreatedAt
	return &out, nil
}
func (s *stubCallRepo) GetByID(context.Context, string) (*domain.ScheduledCall, error) {
	return nil, domain.ErrCallNotFound
}
func (s *stubCallRepo) List(context.Context, repository.ListCallsInput) ([]*repository.ScheduledCallRow, error) {
	return nil, nil
}
func (s *stubCallRepo) HasActiveForDate(context.Context, string, time.Time) (bool, error) {
	return false, nil
}
func (s *stubCallRepo) MarkQueued(context.Context, string, string) error { return nil }
func (s *stubCallRepo) Complete(context.Context, string, string) error   { return nil }
func (s *stubCallRepo) Requeue(context.Context, string, string) error    { return nil }
func (s *stubCallRepo) Fail(context.Context, string, string) error       { return nil }
func (s *stubCallRepo) Cancel(context.Context, string) error             { return s.cancelErr }
func (s *stubCallRepo) Stats(context.Context, time.Time) (*domain.CallStats, error) {
	return &domain.CallStats{}, nil
}
func (s *stubCallRepo) DeleteTerminalOlderThan(context.Context, time.Time) (int, error) {
	return 0, nil
}

type stubConfigRepo struct{}

func (stubConfigRepo) Get(context.Context) (*domain.SchedulerConfig, error) {
	cfg := domain.DefaultSchedulerConfig()
	return &cfg, nil
}
func (stubConfigRepo) Update(_ context.Context, patch domain.SchedulerConfigPatch) (*domain.SchedulerConfig, error) {
	cfg := domain.DefaultSchedulerConfig()
	if err := cfg.Apply(patch); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type stubEnqueuer struct{}

func (stubEnqueuer) Enqueue(context.Context, string, time.Duration) (string, error) {
	return "task-1", nil
}

func newEngine(repo *stubCallRepo) *gin.Engine {
	uc := usecase.NewSchedulerUsecase(repo, stubConfigRepo{}, nil, nil, stubEnqueuer{}, usecase.NoopCache{}, slog.Default())
	h := handler.NewSchedulerHandler(uc, slog.Default())

	r := gin.New()
	r.GET("/scheduler/config", h.GetConfig)
	r.PATCH("/scheduler/config", h.UpdateConfig)
	r.POST("/scheduler/scheduled-calls", h.CreateCall)
	r.DELETE("/scheduler/scheduled-calls/:id", h.CancelCall)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestGetConfig_ReturnsDefaults(t *testing.T) {
	w := do(t, newEngine(&stubCallRepo{}), http.MethodGet, "/scheduler/config", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Enabled        bool   `json:"enabled"`
		DailyRunTime   string `json:"daily_run_time"`
		MaxCallsPerDay int    `json:"max_calls_per_day"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Enabled || resp.DailyRunTime != "10:00" || resp.MaxCallsPerDay != 50 {
		t.Errorf("unexpected config: %+v", resp)
	}
}

func TestUpdateConfig_InvalidRunTime_Returns400(t *testing.T) {
	w := do(t, newEngine(&stubCallRepo{}), http.MethodPatch, "/scheduler/config",
		`{"daily_run_time": "25:99"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateCall_Duplicate_Returns409(t *testing.T) {
	repo := &stubCallRepo{createErr: domain.ErrAlreadyScheduled}
	w := do(t, newEngine(repo), http.MethodPost, "/scheduler/scheduled-calls",
		`{"customer_id": "c1"}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestCreateCall_MissingCustomer_Returns400(t *testing.T) {
	w := do(t, newEngine(&stubCallRepo{}), http.MethodPost, "/scheduler/scheduled-calls", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateCall_UnknownReason_Returns400(t *testing.T) {
	w := do(t, newEngine(&stubCallRepo{}), http.MethodPost, "/scheduler/scheduled-calls",
		`{"customer_id": "c1", "reason": "cold_outreach"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateCall_Valid_Returns201(t *testing.T) {
	w := do(t, newEngine(&stubCallRepo{}), http.MethodPost, "/scheduler/scheduled-calls",
		`{"customer_id": "c1", "notes": "asked for a callback"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Status != "pending" || resp.Reason != "manual" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCancelCall_Unknown_Returns404(t *testing.T) {
	repo := &stubCallRepo{cancelErr: domain.ErrCallNotFound}
	w := do(t, newEngine(repo), http.MethodDelete, "/scheduler/scheduled-calls/missing", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCancelCall_AlreadyExecuted_Returns409(t *testing.T) {
	repo := &stubCallRepo{cancelErr: domain.ErrInvalidState}
	w := do(t, newEngine(repo), http.MethodDelete, "/scheduler/scheduled-calls/sc-1", "")

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}
