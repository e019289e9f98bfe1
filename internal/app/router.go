package app

import (
	"database/sql"
	"net/http"
	"time"

	"testdesk/internal/app/observability"
	"testdesk/internal/auth"
	"testdesk/internal/catalog"
	"testdesk/internal/ledger"
	"testdesk/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	authSvc := auth.NewService(db, time.Duration(cfg.SessionTTLHours)*time.Hour)
	authHandler := auth.NewHandler(authSvc)

	catalogSvc := catalog.NewService(db)
	catalogHandler := catalog.NewHandler(catalogSvc)

	ledgerSvc := ledger.NewService(db, cfg.StoreRetryAttempts)
	ledgerHandler := ledger.NewHandler(ledgerSvc)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.With(RateLimitMiddleware(authLimiter)).Post("/auth/login", authHandler.Login)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			// Student self-service.
			secure.Group(func(student chi.Router) {
				student.Use(authHandler.RequireRoles(catalog.RoleStudent))
				student.Get("/my/tests", ledgerHandler.ListMyTests)
				student.Get("/my/tests/{id}/tree", catalogHandler.GetTestTree)
				student.Post("/my/tests/{id}/attempts", ledgerHandler.SubmitAttempt)
				student.Get("/my/tests/{id}/summary", reportHandler.GetMySummary)
				student.Get("/my/tests/{id}/attempts/{attemptID}", reportHandler.GetMyAttemptDetail)
				student.Get("/my/attempted-tests", reportHandler.ListMyAttemptedTests)
			})

			// Test authoring and assignment management.
			secure.Group(func(staff chi.Router) {
				staff.Use(authHandler.RequireRoles(catalog.RoleAdmin, catalog.RoleTeacher))
				staff.Get("/tests", catalogHandler.ListTests)
				staff.Post("/tests", catalogHandler.CreateTest)
				staff.Get("/tests/{id}/tree", catalogHandler.GetTestTree)
				staff.Patch("/tests/{id}/description", catalogHandler.UpdateTestDescription)
				staff.Delete("/tests/{id}", catalogHandler.DeleteTest)

				staff.Get("/students", catalogHandler.ListStudents)
				staff.Get("/groups", catalogHandler.ListGroups)
				staff.Get("/groups/{id}/members", catalogHandler.ListGroupMembers)

				staff.Post("/assignments/students", ledgerHandler.AssignToStudent)
				staff.Delete("/assignments/students", ledgerHandler.RevokeFromStudent)
				staff.Post("/assignments/groups", ledgerHandler.AssignToGroup)
				staff.Delete("/assignments/groups", ledgerHandler.RevokeFromGroup)
				staff.Get("/assignments/students/{studentID}/tests/{testID}/remaining", ledgerHandler.GetRemainingAttempts)
				staff.Get("/assignments/students/{id}", ledgerHandler.ListStudentAssignments)

				staff.Get("/reports/students/{studentID}/tests/{testID}/summary", reportHandler.GetSummary)
				staff.Get("/reports/students/{studentID}/tests/{testID}/summary/export", reportHandler.ExportSummary)
				staff.Get("/reports/students/{studentID}/tests/{testID}/attempts/{attemptID}", reportHandler.GetAttemptDetail)
			})

			// User and group administration.
			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(catalog.RoleAdmin))
				admin.Get("/users", catalogHandler.ListUsers)
				admin.Post("/users", catalogHandler.CreateUser)
				admin.Get("/users/{id}", catalogHandler.GetUser)
				admin.Put("/users/{id}", catalogHandler.UpdateUser)
				admin.Delete("/users/{id}", catalogHandler.DeleteUser)

				admin.Post("/groups", catalogHandler.CreateGroup)
				admin.Delete("/groups/{id}", catalogHandler.DeleteGroup)
				admin.Put("/students/{id}/group", catalogHandler.SetStudentGroup)
				admin.Get("/students/{id}/group", catalogHandler.GetStudentGroup)
			})
		})
	})

	return r
}
