package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stridelab/stridecoach/internal/coach"
	"github.com/stridelab/stridecoach/internal/middleware"
	"github.com/stridelab/stridecoach/internal/scheduler"
)

// New wires all endpoints into a router. sched may be nil when the caller
// runs without background maintenance (tests, one-shot tools); limiter may
// be nil to disable rate limiting on the model-invoking endpoints.
func New(db *sql.DB, engine *coach.Engine, sched *scheduler.Scheduler, limiter *middleware.RateLimiter) http.Handler {
	users := &Users{DB: db}
	profiles := &Profiles{DB: db}
	activities := &Activities{DB: db, Engine: engine}
	plans := &Plans{DB: db, Engine: engine}
	coaching := &Coach{DB: db, Engine: engine}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)

	r.Get("/healthz", healthHandler(db, sched))

	r.Post("/users", users.Create)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", users.Get)

		r.Get("/profile", profiles.Get)
		r.Patch("/profile", profiles.Update)

		r.Get("/activities", activities.List)
		r.Post("/activities", activities.Create)
		r.Post("/activities/import", activities.Import)

		r.Get("/plan", plans.Get)
		r.Post("/plan/reconcile", plans.Reconcile)

		r.Get("/coach/tone", coaching.Tone)
		r.Get("/coach/interactions", coaching.Interactions)

		// Endpoints that may invoke the model provider sit behind the
		// rate limiter.
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Limit)
			}
			r.Post("/activities/{activityID}/reaction", activities.React)
			r.Post("/plan/generate", plans.Generate)
			r.Get("/coach/summary", coaching.Summary)
			r.Get("/coach/encouragement", coaching.Encouragement)
			r.Post("/coach/chat", coaching.Chat)
		})
	})

	return r
}

func healthHandler(db *sql.DB, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			log.Printf("handlers: health check db ping: %v", err)
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}

		body := map[string]any{"status": "ok"}
		if sched != nil {
			st := sched.Status()
			sj := map[string]any{}
			if !st.LastRun.IsZero() {
				sj["last_run"] = st.LastRun.UTC().Format(time.RFC3339)
				sj["next_run"] = st.NextRun.UTC().Format(time.RFC3339)
				sj["users_reconciled"] = st.UsersReconciled
				sj["statuses_changed"] = st.StatusesChanged
				sj["artifacts_refreshed"] = st.ArtifactsRefreshed
				sj["interactions_pruned"] = st.InteractionsPruned
			}
			body["scheduler"] = sj
		}
		writeJSON(w, http.StatusOK, body)
	}
}
