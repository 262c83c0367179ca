package coach

import (
	"encoding/json"
	"fmt"
	"strings"
)

// sharedSystemPolicy is the system-prompt base every feature builds on.
const sharedSystemPolicy = "You are a running coach assistant. Be concise and practical. " +
	"Never invent workout metrics; if data is missing, explicitly say so and provide safe generic guidance. " +
	"Respect athlete availability, rest days, and injury notes. " +
	"Prefer conservative progression and recovery-aware advice."

// promptJSON renders a context value as a compact JSON blob for embedding in
// a prompt. Marshal failures degrade to "{}" rather than aborting the call.
func promptJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func weeklyPlanSystemPrompt() string {
	return sharedSystemPolicy +
		" Return strict JSON schema for weekly planning. Rules: max 2 hard sessions/week, avoid >10% weekly distance increase unless stable build is shown, " +
		"long run easy by default, respect availability/rest days, and reduce load when risk flags exist."
}

func weeklyPlanUserPrompt(profile ProfilePayload, goal GoalPayload, state *AthleteState, workouts []CompactWorkout, weekStart string) string {
	return fmt.Sprintf(
		"Create weekly plan for week_start=%s. profile_json=%s goal_json=%s athlete_state_json=%s relevant_workouts_json=%s",
		weekStart, promptJSON(profile), promptJSON(goal), promptJSON(state), promptJSON(workouts),
	)
}

func coachSaysSystemPrompt() string {
	return sharedSystemPolicy +
		" Return JSON with coach_says. Keep it 2-3 short sentences. No emojis. " +
		"If referencing planned sessions, use only training_plan_json and do not invent extra dates/sessions."
}

func coachSaysUserPrompt(workout CompactWorkout, goal GoalPayload, state *AthleteState, weekPlan *WeekPlanSnapshot) string {
	return fmt.Sprintf(
		"single_workout_json=%s goal_json=%s athlete_state_json=%s training_plan_json=%s",
		promptJSON(workout), promptJSON(goal), promptJSON(state), promptJSON(weekPlan),
	)
}

func weeklySummarySystemPrompt() string {
	return sharedSystemPolicy +
		" Return strict JSON weekly summary. headline max 8 words, highlights max 4 bullets. " +
		"training_plan_json is source of truth for planned sessions and dates; do not invent extra sessions or dates."
}

func weeklySummaryUserPrompt(weekly *WeeklyStats, goal GoalPayload, state *AthleteState, weekPlan *WeekPlanSnapshot) string {
	return fmt.Sprintf(
		"weekly_stats_json=%s goal_json=%s athlete_state_json=%s training_plan_json=%s",
		promptJSON(weekly), promptJSON(goal), promptJSON(state), promptJSON(weekPlan),
	)
}

func quickEncouragementSystemPrompt() string {
	return sharedSystemPolicy +
		" Return JSON with exactly two supportive but concrete sentences in encouragement field. " +
		"Use training_plan_json as source of truth; never mention dates or planned sessions not present there."
}

func quickEncouragementUserPrompt(weekly *WeeklyStats, goal GoalPayload, state *AthleteState, weekPlan *WeekPlanSnapshot) string {
	return weeklySummaryUserPrompt(weekly, goal, state, weekPlan)
}

func generalChatSystemPrompt(maxChars int) string {
	return sharedSystemPolicy + fmt.Sprintf(" Keep response concise and below %d chars when practical.", maxChars)
}

func generalChatUserPrompt(message string, profile ProfilePayload, goal GoalPayload, state *AthleteState, workouts []CompactWorkout, weekPlan *WeekPlanSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "user_message=%s profile_json=%s goal_json=%s athlete_state_json=%s relevant_workouts_json=%s training_plan_json=%s. ",
		message, promptJSON(profile), promptJSON(goal), promptJSON(state), promptJSON(workouts), promptJSON(weekPlan))
	b.WriteString("Answer directly and practical. Ask at most one follow-up question only if required.")
	return b.String()
}

func safeAdjustmentSystemPrompt() string {
	return sharedSystemPolicy + " Write one safe adjustment sentence only."
}
