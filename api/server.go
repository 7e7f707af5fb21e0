/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers and permissions.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (status, latency, request id)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend
  5. Auth:       Bearer JWT on /api, per-route permission checks

ROUTE GROUPS:
  /healthz                 Liveness and store ping (public)
  /api/departments/*       Department cash boxes and statements
  /api/transactions/*      Deposits, withdrawals, approvals, export
  /api/transfers/*         Inter-department transfers
  /api/professionals/*     Professionals, schedules, availability
  /api/appointments/*      Booking lifecycle
  /api/members/*           Member directory
  /api/reconciliation/*    Balance verification runs
  /api/scenarios/*         Demo scenarios (admin only)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: token and permission checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ministerio/gestao-engine/auth"
)

// RouterOptions carries the optional router collaborators.
type RouterOptions struct {
	AllowedOrigins []string
	Reconciler     *BalanceReconciler
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, issuer *auth.Issuer, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: !allowsAny(origins),
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(issuer.Middleware)

		r.Route("/departments", func(r chi.Router) {
			r.With(auth.Require(auth.LedgerRead)).Get("/", h.ListDepartments)
			r.With(auth.Require(auth.LedgerWrite)).Post("/", h.CreateDepartment)
			r.With(auth.Require(auth.LedgerRead)).Get("/summary", h.GetDepartmentSummary)
			r.With(auth.Require(auth.LedgerRead)).Get("/{id}", h.GetDepartment)
			r.With(auth.Require(auth.LedgerWrite)).Post("/{id}/active", h.SetDepartmentActive)
			r.With(auth.Require(auth.LedgerRead)).Get("/{id}/balance", h.GetMonthlyBalance)
			r.With(auth.Require(auth.LedgerRead)).Get("/{id}/verify", h.VerifyBalance)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.With(auth.Require(auth.LedgerRead)).Get("/", h.ListTransactions)
			r.With(auth.Require(auth.LedgerWrite)).Post("/", h.CreateTransaction)
			r.With(auth.Require(auth.LedgerRead)).Get("/export", h.ExportTransactions)
			r.With(auth.Require(auth.LedgerRead)).Get("/{id}", h.GetTransaction)
			r.With(auth.Require(auth.LedgerApprove)).Post("/{id}/status", h.UpdateTransactionStatus)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.With(auth.Require(auth.LedgerWrite)).Post("/", h.CreateTransfer)
			r.With(auth.Require(auth.LedgerRead)).Get("/{id}", h.GetTransfer)
			r.With(auth.Require(auth.LedgerApprove)).Post("/{id}/status", h.UpdateTransferStatus)
		})

		r.Route("/professionals", func(r chi.Router) {
			r.With(auth.Require(auth.SchedulingRead)).Get("/", h.ListProfessionals)
			r.With(auth.Require(auth.SchedulingWrite)).Post("/", h.CreateProfessional)
			r.With(auth.Require(auth.SchedulingRead)).Get("/{id}", h.GetProfessional)
			r.With(auth.Require(auth.SchedulingWrite)).Post("/{id}/status", h.SetProfessionalStatus)
			r.With(auth.Require(auth.SchedulingWrite)).Put("/{id}/schedule", h.UpdateSchedule)
			r.With(auth.Require(auth.SchedulingRead)).Get("/{id}/availability", h.GetAvailability)
			r.With(auth.Require(auth.SchedulingRead)).Get("/{id}/appointments", h.GetAgenda)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.With(auth.Require(auth.SchedulingWrite)).Post("/", h.BookAppointment)
			r.With(auth.Require(auth.SchedulingRead)).Get("/{id}", h.GetAppointment)
			r.With(auth.Require(auth.SchedulingWrite)).Post("/{id}/status", h.UpdateAppointmentStatus)
			r.With(auth.Require(auth.SchedulingWrite)).Post("/{id}/reschedule", h.RescheduleAppointment)
		})

		r.Route("/members", func(r chi.Router) {
			r.With(auth.Require(auth.SchedulingRead)).Get("/", h.ListMembers)
			r.With(auth.Require(auth.MembersWrite)).Post("/", h.CreateMember)
			r.With(auth.Require(auth.MembersWrite)).Get("/export", h.ExportMembers)
			r.With(auth.Require(auth.SchedulingRead)).Get("/{id}", h.GetMember)
			r.With(auth.Require(auth.MembersWrite)).Post("/{id}/active", h.SetMemberActive)
		})

		if opts.Reconciler != nil {
			r.Route("/reconciliation", func(r chi.Router) {
				r.With(auth.Require(auth.LedgerRead)).Get("/runs", opts.Reconciler.ListReconciliationRuns)
				r.With(auth.Require(auth.LedgerApprove)).Post("/run", opts.Reconciler.TriggerReconciliation)
			})
		}

		r.Route("/scenarios", func(r chi.Router) {
			r.Use(auth.Require(auth.AdminManage))
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request, at warn for 4xx and error for 5xx.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l := logger.With(
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
			)
			switch {
			case status >= 500:
				l.Error("server error")
			case status >= 400:
				l.Warn("client error")
			default:
				l.Info("request processed")
			}
		})
	}
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
