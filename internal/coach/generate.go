package coach

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
	"github.com/stridelab/stridecoach/internal/plan"
)

// Engine composes the state builder, cache, router, and completion client
// into the per-feature generators. Every generator returns a usable artifact:
// provider failures are recovered through the repair/escalate/fallback ladder
// and never propagate to the caller.
type Engine struct {
	DB     *sql.DB
	Client *Client

	// Now is the clock used for week boundaries and trend cutoffs.
	// Overridable in tests.
	Now func() time.Time
}

// NewEngine creates an engine around a database and completion client.
func NewEngine(db *sql.DB, client *Client) *Engine {
	return &Engine{DB: db, Client: client, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// engineContext is the assembled per-call generation context.
type engineContext struct {
	profile  *models.AthleteProfile
	settings AISettings
	profJSON ProfilePayload
	goal     GoalPayload
	state    *AthleteState
	relevant []CompactWorkout
	weekPlan *WeekPlanSnapshot
}

// buildContext loads the profile, settings, athlete state, and current-week
// plan snapshot. When bootstrapLastN > 0 the state is built from the N most
// recent activities regardless of the lookback window — used right after an
// import, when the lookback window may be empty.
func (e *Engine) buildContext(userID int64, bootstrapLastN int) (*engineContext, error) {
	profile, err := models.GetOrCreateProfile(e.DB, userID)
	if err != nil {
		return nil, err
	}
	settings := SettingsFromProfile(profile)
	now := e.now()

	var activities []*models.Activity
	var state *AthleteState
	if bootstrapLastN > 0 {
		activities, err = models.ListRecentActivities(e.DB, userID, bootstrapLastN)
		if err != nil {
			return nil, err
		}
		state = BuildAthleteState(profile, activities, settings.LookbackDays, now)
	} else {
		since := now.AddDate(0, 0, -settings.LookbackDays)
		activities, err = models.ListActivitiesSince(e.DB, userID, since)
		if err != nil {
			return nil, err
		}
		state, err = e.athleteStateCached(userID, profile, activities, settings.LookbackDays, now)
		if err != nil {
			return nil, err
		}
	}

	weekPlan, err := currentWeekPlan(e.DB, userID, now)
	if err != nil {
		return nil, err
	}

	return &engineContext{
		profile:  profile,
		settings: settings,
		profJSON: profilePayload(profile),
		goal:     goalPayload(profile),
		state:    state,
		relevant: relevantWorkouts(activities),
		weekPlan: weekPlan,
	}, nil
}

// athleteStateCached serves the derived athlete state from the feature
// cache. The key embeds the newest activity id, so the cached state stays
// valid until a new activity lands.
func (e *Engine) athleteStateCached(userID int64, profile *models.AthleteProfile, activities []*models.Activity, lookbackDays int, now time.Time) (*AthleteState, error) {
	var lastID int64
	if len(activities) > 0 {
		lastID = activities[0].ID
	}
	cacheKey := fmt.Sprintf("%d:%d:%d", userID, lookbackDays, lastID)

	row, err := models.GetFeatureCache(e.DB, userID, "athlete_state", cacheKey)
	if err == nil && row.PayloadJSON != "" {
		var cached AthleteState
		if json.Unmarshal([]byte(row.PayloadJSON), &cached) == nil && cached.ReadinessHint != "" {
			return &cached, nil
		}
	}
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	state := BuildAthleteState(profile, activities, lookbackDays, now)
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("coach: marshal athlete state: %w", err)
	}
	err = models.UpsertFeatureCache(e.DB, &models.FeatureCacheEntry{
		UserID:      userID,
		Feature:     "athlete_state",
		CacheKey:    cacheKey,
		PayloadJSON: string(raw),
		Model:       "deterministic",
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// jsonCall carries the inputs of one schema-validated generation attempt.
type jsonCall struct {
	feature           string
	userID            int64
	system            string
	user              string
	schemaName        string
	schema            map[string]any
	validate          func(map[string]any) error
	riskFlags         []string
	contextSnapshot   any
	relatedActivityID int64
	relatedPlanID     int64
}

// callJSON runs the shared ladder for schema-validated features:
// route, complete, validate, one repair attempt, then one escalation to the
// top tier when the router permits it. Returns the parsed payload (nil when
// every rung failed), the last completion result, and the interaction id.
func (e *Engine) callJSON(ctx context.Context, call jsonCall) (map[string]any, *Result, int64) {
	route := RouteModel(call.feature, false, call.riskFlags)
	res := e.Client.CompleteJSON(ctx, route.Model, call.system, call.user, call.schemaName, call.schema, 0.1)
	unrepairable := isUnrepairable(res)

	parsed := res.Parsed
	lowConfidence := parsed == nil
	if !lowConfidence && call.validate(parsed) != nil {
		lowConfidence = true
		parsed = nil
	}

	if lowConfidence && !unrepairable {
		repair := "Fix schema exactly. Keep concise. Original input: " + call.user
		res = e.Client.CompleteJSON(ctx, route.Model, call.system, repair, call.schemaName, call.schema, 0.1)
		if res.Parsed != nil && call.validate(res.Parsed) == nil {
			parsed = res.Parsed
			lowConfidence = false
		}
		unrepairable = isUnrepairable(res)
	}

	if lowConfidence && !unrepairable {
		esc := RouteModel(call.feature, true, call.riskFlags)
		if esc.AllowEscalation {
			res = e.Client.CompleteJSON(ctx, esc.Model, call.system, call.user, call.schemaName, call.schema, 0.1)
			if res.Parsed != nil && call.validate(res.Parsed) == nil {
				parsed = res.Parsed
			}
		}
	}

	interactionID := e.logInteraction(&models.Interaction{
		UserID:            call.userID,
		Mode:              call.feature,
		Model:             res.Model,
		Status:            res.Status,
		Source:            res.Source,
		ErrorMessage:      res.ErrorMessage,
		ResponseText:      res.Text,
		PromptSystem:      call.system,
		PromptUser:        call.user,
		ContextHash:       jsonHash(call.contextSnapshot),
		RelatedActivityID: nullID(call.relatedActivityID),
		RelatedPlanID:     nullID(call.relatedPlanID),
		TokensInput:       nullTokens(res.TokensInput),
		TokensOutput:      nullTokens(res.TokensOutput),
	})
	if res.Status == StatusFailed {
		log.Printf("coach: %s failed model=%s source=%s error=%.300s", call.feature, res.Model, res.Source, res.ErrorMessage)
	}
	return parsed, res, interactionID
}

// isUnrepairable reports whether retrying the same prompt cannot help:
// missing credentials, or a request the provider rejected outright.
func isUnrepairable(res *Result) bool {
	if res.Failure == FailureNoCredentials {
		return true
	}
	if res.Status != StatusFailed {
		return false
	}
	msg := strings.ToLower(res.ErrorMessage)
	return strings.Contains(msg, "400") || strings.Contains(msg, "invalid_request")
}

// logInteraction appends an audit record. Best effort: a lost record must
// never fail the generation it was recording.
func (e *Engine) logInteraction(rec *models.Interaction) int64 {
	id, err := models.CreateInteraction(e.DB, rec)
	if err != nil {
		log.Printf("coach: interaction log write failed: %v", err)
		return 0
	}
	return id
}

func nullID(id int64) sql.NullInt64 {
	if id > 0 {
		return sql.NullInt64{Int64: id, Valid: true}
	}
	return sql.NullInt64{}
}

func nullTokens(n int) sql.NullInt64 {
	if n > 0 {
		return sql.NullInt64{Int64: int64(n), Valid: true}
	}
	return sql.NullInt64{}
}

// WeekPlanBlob is the authoritative plan_json stored on a training plan row.
type WeekPlanBlob struct {
	WeekStart     string        `json:"week_start"`
	WeekEnd       string        `json:"week_end"`
	Days          []plan.DayRow `json:"days"`
	WeeklyTargets WeeklyTargets `json:"weekly_targets"`
	RiskNotes     []string      `json:"risk_notes"`
	Source        string        `json:"source"`
	Model         string        `json:"model"`
	InputHash     string        `json:"input_hash"`
}

// PlanArtifact is the result of a weekly-plan generation.
type PlanArtifact struct {
	Skipped       bool          `json:"skipped"`
	Source        string        `json:"source"`
	Plan          *WeekPlanBlob `json:"plan"`
	InteractionID int64         `json:"interaction_id,omitempty"`
}

// GenerateWeeklyPlan produces next week's plan. Idempotent unless force:
// when the active plan's stored input hash matches the current context, the
// existing plan is returned untouched. bootstrapLastN > 0 builds the
// context from the N newest activities instead of the lookback window.
func (e *Engine) GenerateWeeklyPlan(ctx context.Context, userID int64, force bool, bootstrapLastN int) (*PlanArtifact, error) {
	ec, err := e.buildContext(userID, bootstrapLastN)
	if err != nil {
		return nil, err
	}
	if !ec.settings.Enabled(FeatureWeeklyPlan) {
		return &PlanArtifact{Skipped: true, Source: SourceFeatureDisabled}, nil
	}

	nextWeek := mondayOf(e.now()).AddDate(0, 0, 7)
	weekStart := nextWeek.Format("2006-01-02")
	weekEnd := nextWeek.AddDate(0, 0, 6).Format("2006-01-02")

	inputPayload := map[string]any{
		"profile":           ec.profJSON,
		"goal":              ec.goal,
		"athlete_state":     ec.state,
		"relevant_workouts": ec.relevant,
		"week_start":        weekStart,
	}
	inputHash := jsonHash(inputPayload)

	if !force {
		existing, err := models.GetActivePlanByStart(e.DB, userID, weekStart)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			var blob WeekPlanBlob
			if json.Unmarshal([]byte(existing.PlanJSON), &blob) == nil && blob.InputHash == inputHash {
				return &PlanArtifact{Skipped: true, Source: SourceCache, Plan: &blob}, nil
			}
		}
	}

	parsed, res, interactionID := e.callJSON(ctx, jsonCall{
		feature:    FeatureWeeklyPlan,
		userID:     userID,
		system:     weeklyPlanSystemPrompt(),
		user:       weeklyPlanUserPrompt(ec.profJSON, ec.goal, ec.state, ec.relevant, weekStart),
		schemaName: "weekly_plan",
		schema:     weeklyPlanSchema,
		validate: func(m map[string]any) error {
			_, err := ParseWeeklyPlan(m)
			return err
		},
		riskFlags:       ec.state.RiskFlags,
		contextSnapshot: inputPayload,
	})

	var output *WeeklyPlanOutput
	if parsed != nil {
		output, err = ParseWeeklyPlan(parsed)
		if err != nil {
			output = nil
		}
	}
	source := res.Source
	if output == nil {
		output = fallbackWeeklyPlan(nextWeek)
		// Keep the provenance of the failure when the provider never
		// produced anything usable.
		if res.Status == StatusSuccess {
			source = SourceFallback
		}
	}

	blob := planBlobFromOutput(output, weekStart, weekEnd, source, res.Model, inputHash)
	raw, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("coach: marshal plan blob: %w", err)
	}
	tp, err := models.UpsertActivePlan(e.DB, userID, weekStart, weekEnd, string(raw))
	if err != nil {
		return nil, err
	}
	if _, err := plan.ReplaceWeekRows(e.DB, userID, weekStart, weekEnd, blob.Days, tp.ID, blob.Source); err != nil {
		return nil, err
	}

	return &PlanArtifact{Source: source, Plan: blob, InteractionID: interactionID}, nil
}

// fallbackWeeklyPlan is the deterministic 3-day easy/long plan used when the
// ladder is exhausted. It must read as plausible coaching content.
func fallbackWeeklyPlan(weekStart time.Time) *WeeklyPlanOutput {
	days := []PlanDay{}
	for _, offset := range []int{0, 2, 5} {
		day := PlanDay{
			Date:           weekStart.AddDate(0, 0, offset).Format("2006-01-02"),
			Type:           "easy",
			DurationMin:    45,
			DistanceKM:     8,
			IntensityNotes: "Comfortable aerobic effort",
			MainSet:        "Steady continuous run",
			WarmupCooldown: "10 min easy + mobility",
			CoachNote:      "Keep effort controlled and finish feeling strong.",
		}
		if offset == 5 {
			day.Type = "long"
			day.DurationMin = 70
			day.DistanceKM = 12
		}
		days = append(days, day)
	}
	return &WeeklyPlanOutput{
		WeekStartDate: weekStart.Format("2006-01-02"),
		Plan:          days,
		WeeklyTargets: WeeklyTargets{
			TotalDistanceKM:  28,
			TotalDurationMin: 160,
			HardSessions:     0,
			Focus:            "consistency",
		},
		RiskNotes: []string{"ai_fallback"},
	}
}

// planBlobFromOutput converts a validated plan into the stored blob shape,
// denormalizing each day into the row layout.
func planBlobFromOutput(output *WeeklyPlanOutput, weekStart, weekEnd, source, model, inputHash string) *WeekPlanBlob {
	days := make([]plan.DayRow, 0, len(output.Plan))
	for _, d := range output.Plan {
		zone := "Z3"
		switch d.Type {
		case "rest", "easy", "long":
			zone = "Z2"
		}
		km := d.DistanceKM
		days = append(days, plan.DayRow{
			Date:        d.Date,
			Sport:       "run",
			DurationMin: d.DurationMin,
			DistanceKM:  &km,
			HRZone:      zone,
			Title:       titleCase(d.Type),
			WorkoutType: d.Type,
			CoachNotes:  d.CoachNote,
			Status:      models.StatusPlanned,
			MainSet:     d.MainSet,
		})
	}
	ws := output.WeekStartDate
	if ws == "" {
		ws = weekStart
	}
	return &WeekPlanBlob{
		WeekStart:     ws,
		WeekEnd:       weekEnd,
		Days:          days,
		WeeklyTargets: output.WeeklyTargets,
		RiskNotes:     output.RiskNotes,
		Source:        source,
		Model:         model,
		InputHash:     inputHash,
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ReactionArtifact is a short post-activity coach reaction.
type ReactionArtifact struct {
	Answer        string `json:"answer"`
	Source        string `json:"source"`
	Status        string `json:"status"`
	Model         string `json:"model,omitempty"`
	InteractionID int64  `json:"interaction_id,omitempty"`
}

const defaultCoachSays = "Nice work. Keep the next session easy and controlled."

// GenerateActivityReaction produces a 2-3 sentence reaction to a completed
// activity and refreshes the weekly artifacts as a side effect.
func (e *Engine) GenerateActivityReaction(ctx context.Context, userID int64, activity *models.Activity) (*ReactionArtifact, error) {
	ec, err := e.buildContext(userID, 0)
	if err != nil {
		return nil, err
	}
	if !ec.settings.Enabled(FeatureCoachSays) {
		return &ReactionArtifact{Answer: "Feature disabled.", Source: SourceFeatureDisabled, Status: StatusFallback}, nil
	}

	workout := compactWorkout(activity)
	parsed, res, interactionID := e.callJSON(ctx, jsonCall{
		feature:    FeatureCoachSays,
		userID:     userID,
		system:     coachSaysSystemPrompt(),
		user:       coachSaysUserPrompt(workout, ec.goal, ec.state, ec.weekPlan),
		schemaName: "coach_says",
		schema:     coachSaysSchema,
		validate: func(m map[string]any) error {
			_, err := ParseCoachSays(m)
			return err
		},
		riskFlags: ec.state.RiskFlags,
		contextSnapshot: map[string]any{
			"workout":       workout,
			"goal":          ec.goal,
			"athlete_state": ec.state,
			"training_plan": ec.weekPlan,
		},
		relatedActivityID: activity.ID,
	})

	text := defaultCoachSays
	if parsed != nil {
		if out, err := ParseCoachSays(parsed); err == nil {
			text = out.CoachSays
		}
	}
	text = normalizeSentences(text, 2, 3,
		"If metrics are missing, use effort and breathing to stay controlled next workout")

	if _, err := e.RefreshWeeklyArtifacts(ctx, userID); err != nil {
		log.Printf("coach: refresh weekly artifacts for user %d: %v", userID, err)
	}

	return &ReactionArtifact{
		Answer:        text,
		Source:        res.Source,
		Status:        res.Status,
		Model:         res.Model,
		InteractionID: interactionID,
	}, nil
}

// SummaryPayload is the cached weekly-summary artifact.
type SummaryPayload struct {
	Headline           string   `json:"headline"`
	Highlights         []string `json:"highlights"`
	WhatToImprove      []string `json:"what_to_improve"`
	NextWeekFocus      []string `json:"next_week_focus"`
	RiskFlags          []string `json:"risk_flags"`
	SafeAdjustmentNote string   `json:"safe_adjustment_note,omitempty"`
}

// SummaryArtifact is the result of a weekly-summary generation.
type SummaryArtifact struct {
	Skipped bool            `json:"skipped,omitempty"`
	Cached  bool            `json:"cached,omitempty"`
	Source  string          `json:"source,omitempty"`
	Payload *SummaryPayload `json:"payload"`
}

// GenerateWeeklySummary produces the end-of-week review. The cache key is
// "{week_start}:{last_workout_id}", so a new activity in the week forces a
// fresh key while an unchanged week re-validates through the input hash.
func (e *Engine) GenerateWeeklySummary(ctx context.Context, userID int64) (*SummaryArtifact, error) {
	ec, err := e.buildContext(userID, 0)
	if err != nil {
		return nil, err
	}
	if !ec.settings.Enabled(FeatureWeeklySummary) {
		return &SummaryArtifact{Skipped: true, Source: SourceFeatureDisabled}, nil
	}

	weekly, err := weeklyStats(e.DB, userID, e.now())
	if err != nil {
		return nil, err
	}
	var lastWorkoutID int64
	if len(weekly.Workouts) > 0 {
		lastWorkoutID = weekly.Workouts[len(weekly.Workouts)-1].ID
	}
	cacheKey := fmt.Sprintf("%s:%d", weekly.WeekStart, lastWorkoutID)
	inputPayload := map[string]any{
		"weekly":        weekly,
		"goal":          ec.goal,
		"athlete_state": ec.state,
		"training_plan": ec.weekPlan,
	}
	inputHash := jsonHash(inputPayload)

	genSource := ""
	generate := func() (string, GenerationMeta, error) {
		parsed, res, _ := e.callJSON(ctx, jsonCall{
			feature:    FeatureWeeklySummary,
			userID:     userID,
			system:     weeklySummarySystemPrompt(),
			user:       weeklySummaryUserPrompt(weekly, ec.goal, ec.state, ec.weekPlan),
			schemaName: "weekly_summary",
			schema:     weeklySummarySchema,
			validate: func(m map[string]any) error {
				_, err := ParseWeeklySummary(m)
				return err
			},
			riskFlags:       ec.state.RiskFlags,
			contextSnapshot: inputPayload,
		})
		genSource = res.Source

		payload := &SummaryPayload{
			Headline:      "Week in progress",
			Highlights:    []string{"Data limited this week."},
			WhatToImprove: []string{"Add one easy aerobic session."},
			NextWeekFocus: []string{"Consistency first."},
			RiskFlags:     []string{},
		}
		if parsed != nil {
			if out, err := ParseWeeklySummary(parsed); err == nil {
				payload = &SummaryPayload{
					Headline:      out.Headline,
					Highlights:    out.Highlights,
					WhatToImprove: out.WhatToImprove,
					NextWeekFocus: out.NextWeekFocus,
					RiskFlags:     out.RiskFlags,
				}
			} else {
				genSource = SourceFallback
			}
		} else {
			genSource = SourceFallback
		}

		if len(payload.Highlights) > 4 {
			payload.Highlights = payload.Highlights[:4]
		}
		allowed := allowedPlanDates(ec.weekPlan)
		payload.Highlights = stripUnplannedDates(payload.Highlights, allowed)
		payload.WhatToImprove = stripUnplannedDates(payload.WhatToImprove, allowed)
		payload.NextWeekFocus = stripUnplannedDates(payload.NextWeekFocus, allowed)
		payload.RiskFlags = stripUnplannedDates(payload.RiskFlags, allowed)

		if len(payload.RiskFlags) > 0 || hasFlag(ec.state.RiskFlags, RiskSuddenLoadSpike) {
			payload.SafeAdjustmentNote = e.safeAdjustmentNote(ctx, payload.RiskFlags, ec.state.ReadinessHint)
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return "", GenerationMeta{}, fmt.Errorf("coach: marshal summary: %w", err)
		}
		return string(raw), GenerationMeta{
			Model:        res.Model,
			TokensInput:  res.TokensInput,
			TokensOutput: res.TokensOutput,
		}, nil
	}

	raw, cached, err := getOrGenerate(e.DB, userID, FeatureWeeklySummary, cacheKey, inputHash, generate)
	if err != nil {
		return nil, err
	}
	var payload SummaryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("coach: decode summary payload: %w", err)
	}
	source := genSource
	if cached {
		source = SourceCache
	}
	return &SummaryArtifact{Cached: cached, Source: source, Payload: &payload}, nil
}

// safeAdjustmentNote asks the mid tier for one conservative adjustment
// sentence. Any failure degrades to a fixed recovery note.
func (e *Engine) safeAdjustmentNote(ctx context.Context, riskFlags []string, readinessHint string) string {
	res := e.Client.CompleteText(ctx, ModelHeavy, safeAdjustmentSystemPrompt(),
		fmt.Sprintf("risk_flags=%s readiness=%s", promptJSON(riskFlags), readinessHint), 0.1)
	text := res.Text
	if text == "" {
		text = "Reduce intensity and prioritize recovery next 48 hours."
	}
	return capSentences(text, 1)
}

// EncouragementArtifact is a short cached nudge of exactly two sentences.
type EncouragementArtifact struct {
	Encouragement string `json:"encouragement"`
	Cached        bool   `json:"cached,omitempty"`
	Source        string `json:"source,omitempty"`
	Status        string `json:"status,omitempty"`
}

const defaultEncouragement = "Good momentum this week. Keep easy days truly easy so quality sessions stay sharp."

// GenerateQuickEncouragement produces a two-sentence nudge. Text that
// mentions specific dates or weekdays is replaced with a plan-locked
// summary built only from stored plan counts, so the nudge can never
// reference a session that does not exist.
func (e *Engine) GenerateQuickEncouragement(ctx context.Context, userID int64) (*EncouragementArtifact, error) {
	ec, err := e.buildContext(userID, 0)
	if err != nil {
		return nil, err
	}
	if !ec.settings.Enabled(FeatureQuickEncouragement) {
		return &EncouragementArtifact{Source: SourceFeatureDisabled}, nil
	}

	weekly, err := weeklyStats(e.DB, userID, e.now())
	if err != nil {
		return nil, err
	}
	var lastWorkoutID int64
	if len(weekly.Workouts) > 0 {
		lastWorkoutID = weekly.Workouts[len(weekly.Workouts)-1].ID
	}
	cacheKey := fmt.Sprintf("%s:%d", weekly.WeekStart, lastWorkoutID)
	inputPayload := map[string]any{
		"weekly":        weekly,
		"goal":          ec.goal,
		"athlete_state": ec.state,
		"training_plan": ec.weekPlan,
	}
	inputHash := jsonHash(inputPayload)

	genSource := ""
	genStatus := ""
	generate := func() (string, GenerationMeta, error) {
		parsed, res, _ := e.callJSON(ctx, jsonCall{
			feature:    FeatureQuickEncouragement,
			userID:     userID,
			system:     quickEncouragementSystemPrompt(),
			user:       quickEncouragementUserPrompt(weekly, ec.goal, ec.state, ec.weekPlan),
			schemaName: "quick_encouragement",
			schema:     quickEncouragementSchema,
			validate: func(m map[string]any) error {
				_, err := ParseQuickEncouragement(m)
				return err
			},
			riskFlags:       ec.state.RiskFlags,
			contextSnapshot: inputPayload,
		})
		genSource = res.Source
		genStatus = res.Status

		text := defaultEncouragement
		if parsed != nil {
			if out, err := ParseQuickEncouragement(parsed); err == nil {
				text = out.Encouragement
			}
		}
		if parsed == nil && res.Status != StatusSuccess {
			genStatus = StatusFallback
		}
		text = normalizeSentences(text, 2, 2, "Protect recovery so your key session quality stays high")
		if mentionsSpecificDates(text) {
			text = normalizeSentences(planLockedEncouragement(ec.weekPlan, weekly), 2, 2,
				"Stay consistent with your current plan")
		}

		raw, err := json.Marshal(map[string]string{"encouragement": text})
		if err != nil {
			return "", GenerationMeta{}, err
		}
		return string(raw), GenerationMeta{
			Model:        res.Model,
			TokensInput:  res.TokensInput,
			TokensOutput: res.TokensOutput,
		}, nil
	}

	raw, cached, err := getOrGenerate(e.DB, userID, FeatureQuickEncouragement, cacheKey, inputHash, generate)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Encouragement string `json:"encouragement"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("coach: decode encouragement payload: %w", err)
	}
	art := &EncouragementArtifact{Encouragement: payload.Encouragement, Cached: cached, Source: genSource, Status: genStatus}
	if cached {
		art.Source = SourceCache
		art.Status = StatusSuccess
	}
	return art, nil
}

// planLockedEncouragement builds encouragement text purely from stored plan
// counts and completed distance.
func planLockedEncouragement(weekPlan *WeekPlanSnapshot, weekly *WeeklyStats) string {
	completed := weekPlan.CompletedSessionCount
	planned := weekPlan.PlannedSessionCount
	return fmt.Sprintf(
		"You have completed %d of %d planned sessions this week. Keep the remaining sessions consistent and easy where planned; current completed distance is %.1f km.",
		completed, completed+planned, weekly.DistanceKM,
	)
}

// ChatArtifact is a free-text answer to an open question.
type ChatArtifact struct {
	Answer        string `json:"answer"`
	Source        string `json:"source"`
	Status        string `json:"status"`
	Model         string `json:"model,omitempty"`
	InteractionID int64  `json:"interaction_id,omitempty"`
}

// AnswerGeneralChat answers a free-form question with a hard character cap.
// A message that asks to replan around injury, availability, or travel is
// topic-escalated to the top tier before any validation has failed.
func (e *Engine) AnswerGeneralChat(ctx context.Context, userID int64, message string, maxChars int) (*ChatArtifact, error) {
	ec, err := e.buildContext(userID, 0)
	if err != nil {
		return nil, err
	}
	if !ec.settings.Enabled(FeatureGeneralChat) {
		return &ChatArtifact{Answer: "General chat is disabled.", Source: SourceFeatureDisabled, Status: StatusFallback}, nil
	}
	if maxChars <= 0 {
		maxChars = ec.settings.MaxReplyChars
	}

	decision := RouteModel(FeatureGeneralChat, isMajorReplan(message), ec.state.RiskFlags)
	system := generalChatSystemPrompt(maxChars)
	user := generalChatUserPrompt(message, ec.profJSON, ec.goal, ec.state, ec.relevant, ec.weekPlan)

	res := e.Client.CompleteText(ctx, decision.Model, system, user, 0.2)
	text := strings.TrimSpace(res.Text)
	if len(text) > maxChars {
		text = strings.TrimSpace(text[:maxChars])
	}

	interactionID := e.logInteraction(&models.Interaction{
		UserID:       userID,
		Mode:         FeatureGeneralChat,
		Model:        res.Model,
		Status:       res.Status,
		Source:       res.Source,
		ErrorMessage: res.ErrorMessage,
		ResponseText: text,
		PromptSystem: system,
		PromptUser:   user,
		ContextHash: jsonHash(map[string]any{
			"profile":           ec.profJSON,
			"goal":              ec.goal,
			"athlete_state":     ec.state,
			"relevant_workouts": ec.relevant,
			"training_plan":     ec.weekPlan,
		}),
		TokensInput:  nullTokens(res.TokensInput),
		TokensOutput: nullTokens(res.TokensOutput),
	})

	return &ChatArtifact{
		Answer:        text,
		Source:        res.Source,
		Status:        res.Status,
		Model:         res.Model,
		InteractionID: interactionID,
	}, nil
}

// isMajorReplan detects a replan request tied to injury, availability, or
// travel. Keyword co-occurrence, deliberately simple.
func isMajorReplan(message string) bool {
	m := strings.ToLower(message)
	if !strings.Contains(m, "replan") {
		return false
	}
	for _, kw := range []string{"injury", "constraint", "available", "availability", "travel"} {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

// WeeklyArtifacts bundles the two artifacts refreshed after each activity.
type WeeklyArtifacts struct {
	Summary       *SummaryArtifact       `json:"weekly_summary"`
	Encouragement *EncouragementArtifact `json:"quick_encouragement"`
}

// RefreshWeeklyArtifacts regenerates the weekly summary and encouragement.
// Both are cache-guarded, so an unchanged week is two cheap reads.
func (e *Engine) RefreshWeeklyArtifacts(ctx context.Context, userID int64) (*WeeklyArtifacts, error) {
	summary, err := e.GenerateWeeklySummary(ctx, userID)
	if err != nil {
		return nil, err
	}
	encouragement, err := e.GenerateQuickEncouragement(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &WeeklyArtifacts{Summary: summary, Encouragement: encouragement}, nil
}

// CoachTone returns the current encouragement as ambient coach tone for the
// dashboard, logging the read as its own interaction.
func (e *Engine) CoachTone(ctx context.Context, userID int64) (*ChatArtifact, error) {
	payload, err := e.GenerateQuickEncouragement(ctx, userID)
	if err != nil {
		return nil, err
	}
	text := payload.Encouragement
	if text == "" {
		text = "Keep training controlled this week and protect recovery."
	}
	interactionID := e.logInteraction(&models.Interaction{
		UserID:       userID,
		Mode:         FeatureCoachTone,
		Model:        ModelCheap,
		Status:       StatusSuccess,
		Source:       SourceCache,
		ResponseText: text,
		PromptSystem: sharedSystemPolicy,
		PromptUser:   "quick encouragement from weekly state",
		ContextHash:  jsonHash(payload),
	})
	return &ChatArtifact{
		Answer:        text,
		Source:        SourceCache,
		Status:        StatusSuccess,
		Model:         ModelCheap,
		InteractionID: interactionID,
	}, nil
}

// ReconcileWeek re-derives planned-workout statuses for the week containing
// (or starting at) weekStart and returns the number of rows whose status
// changed.
func (e *Engine) ReconcileWeek(userID int64, weekStart, weekEnd string) (int, error) {
	return plan.RefreshWeekStatuses(e.DB, userID, weekStart, weekEnd, e.now())
}

var (
	isoDateRE = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	weekdayRE = regexp.MustCompile(`(?i)\b(mon|tue|wed|thu|fri|sat|sun)(day)?\b`)
)

func mentionsSpecificDates(text string) bool {
	return isoDateRE.MatchString(text) || weekdayRE.MatchString(text)
}

func allowedPlanDates(weekPlan *WeekPlanSnapshot) map[string]bool {
	allowed := map[string]bool{}
	for _, d := range weekPlan.Days {
		if d.Date != "" {
			allowed[d.Date] = true
		}
	}
	return allowed
}

// stripUnplannedDates drops items that reference an ISO date missing from
// the authoritative plan. When the plan has no dates at all, nothing is
// stripped.
func stripUnplannedDates(items []string, allowed map[string]bool) []string {
	out := []string{}
	for _, item := range items {
		txt := strings.TrimSpace(item)
		if txt == "" {
			continue
		}
		if len(allowed) > 0 && mentionsUnplannedISODate(txt, allowed) {
			continue
		}
		out = append(out, txt)
	}
	return out
}

func mentionsUnplannedISODate(text string, allowed map[string]bool) bool {
	for _, date := range isoDateRE.FindAllString(text, -1) {
		if !allowed[date] {
			return true
		}
	}
	return false
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// capSentences truncates text to at most max sentences, re-terminating with
// a period.
func capSentences(text string, max int) string {
	chunks := splitSentences(text)
	if len(chunks) == 0 {
		return ""
	}
	if len(chunks) > max {
		chunks = chunks[:max]
	}
	return strings.Join(chunks, ". ") + "."
}

// normalizeSentences enforces the sentence-count bounds on free text:
// truncate past max, pad with the filler up to min.
func normalizeSentences(text string, min, max int, filler string) string {
	chunks := splitSentences(text)
	if len(chunks) > max {
		chunks = chunks[:max]
	}
	for len(chunks) < min {
		chunks = append(chunks, filler)
	}
	return strings.Join(chunks, ". ") + "."
}

func splitSentences(text string) []string {
	parts := strings.Split(strings.ReplaceAll(text, "\n", " "), ".")
	out := []string{}
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// mondayOf returns midnight on the Monday of the week containing t.
func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
}
