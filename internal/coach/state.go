package coach

import (
	"math"
	"strings"
	"time"

	"github.com/stridelab/stridecoach/internal/models"
)

// Risk flag vocabulary.
const (
	RiskInjury          = "injury"
	RiskSuddenLoadSpike = "sudden_load_spike"
	RiskOvertraining    = "overtraining"
)

// AthleteState is a compact deterministic summary of recent training load.
// It is a pure function of (profile, activity window, lookback days) and is
// what the prompts feed to the model.
type AthleteState struct {
	LookbackDays     int              `json:"lookback_days"`
	Totals           StateTotals      `json:"totals"`
	IntensityMinutes IntensityMinutes `json:"intensity_minutes"`
	KeySessions      []CompactWorkout `json:"key_sessions"`
	RiskFlags        []string         `json:"fatigue_risk_flags"`
	ReadinessHint    string           `json:"readiness_hint"`
	Trend            DistanceTrend    `json:"trend"`
	Constraints      StateConstraints `json:"constraints"`
}

type StateTotals struct {
	DistanceKM   float64 `json:"distance_km"`
	DurationMin  int     `json:"duration_min"`
	SessionCount int     `json:"session_count"`
}

type IntensityMinutes struct {
	Easy     int `json:"easy"`
	Moderate int `json:"moderate"`
	Hard     int `json:"hard"`
}

type DistanceTrend struct {
	Last7DistanceKM  float64 `json:"last7_distance_km"`
	Last28DistanceKM float64 `json:"last28_distance_km"`
}

type StateConstraints struct {
	Availability []string `json:"availability"`
	InjuryNotes  string   `json:"injury_notes"`
	Constraints  string   `json:"constraints"`
}

// CompactWorkout is the per-activity shape embedded in prompts.
type CompactWorkout struct {
	ID           int64    `json:"id"`
	Date         string   `json:"date"`
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	DistanceKM   float64  `json:"distance_km"`
	DurationMin  int      `json:"duration_min"`
	AvgHR        *int     `json:"avg_hr"`
	PaceSecPerKM *float64 `json:"pace_sec_per_km"`
	SufferScore  *int     `json:"suffer_score"`
	Anomaly      string   `json:"anomaly,omitempty"`
}

// Heart-rate bands for the intensity breakdown. Below 135 bpm a session
// counts as easy, below 155 as moderate, at or above as hard.
const (
	hrModerateFloor = 135
	hrHardFloor     = 155
)

// Hard-minute ceiling before the overtraining flag is raised, and the
// 7-day/28-day distance ratio past which the load-spike flag is raised.
const (
	overtrainingHardMinutes = 120
	loadSpikeRatio          = 0.45
)

// BuildAthleteState derives the athlete state from a profile and the
// activities inside the lookback window, most recent first. now anchors the
// trend cutoffs so the result is reproducible. No I/O.
func BuildAthleteState(profile *models.AthleteProfile, activities []*models.Activity, lookbackDays int, now time.Time) *AthleteState {
	var totalDistM, totalTimeS float64
	for _, a := range activities {
		totalDistM += a.DistanceM
		totalTimeS += float64(a.MovingTimeS)
	}

	trend7 := windowDistanceKM(activities, now, 7)
	trend28 := windowDistanceKM(activities, now, 28)
	intensity := inferIntensityMinutes(activities)

	flags := []string{}
	if strings.TrimSpace(profile.InjuryNotes) != "" {
		flags = append(flags, RiskInjury)
	}
	if trend28 > 0 && trend7 > trend28*loadSpikeRatio {
		flags = append(flags, RiskSuddenLoadSpike)
	}
	if intensity.Hard >= overtrainingHardMinutes {
		flags = append(flags, RiskOvertraining)
	}

	keySessions := []CompactWorkout{}
	scan := activities
	if len(scan) > 10 {
		scan = scan[:10]
	}
	for _, a := range scan {
		lower := strings.ToLower(a.Name)
		isKey := strings.Contains(lower, "long") || strings.Contains(lower, "tempo") || strings.Contains(lower, "interval")
		if (a.AvgHR.Valid && a.AvgHR.Float64 >= hrHardFloor) || isKey {
			keySessions = append(keySessions, compactWorkout(a))
		}
		if len(keySessions) >= 3 {
			break
		}
	}

	return &AthleteState{
		LookbackDays: lookbackDays,
		Totals: StateTotals{
			DistanceKM:   round1(totalDistM / 1000.0),
			DurationMin:  int(totalTimeS / 60),
			SessionCount: len(activities),
		},
		IntensityMinutes: intensity,
		KeySessions:      keySessions,
		RiskFlags:        flags,
		ReadinessHint:    readinessHint(flags),
		Trend: DistanceTrend{
			Last7DistanceKM:  trend7,
			Last28DistanceKM: trend28,
		},
		Constraints: StateConstraints{
			Availability: trainingDays(profile.Schedule()),
			InjuryNotes:  profile.InjuryNotes,
			Constraints:  profile.Constraints,
		},
	}
}

// inferIntensityMinutes buckets each activity's minutes by average heart
// rate. Activities without heart rate count as easy: unknown effort is
// treated as low-risk.
func inferIntensityMinutes(activities []*models.Activity) IntensityMinutes {
	var im IntensityMinutes
	for _, a := range activities {
		mins := a.MovingTimeS / 60
		if mins <= 0 {
			continue
		}
		switch {
		case !a.AvgHR.Valid:
			im.Easy += mins
		case a.AvgHR.Float64 < hrModerateFloor:
			im.Easy += mins
		case a.AvgHR.Float64 < hrHardFloor:
			im.Moderate += mins
		default:
			im.Hard += mins
		}
	}
	return im
}

func readinessHint(flags []string) string {
	if len(flags) == 0 {
		return "Readiness appears stable for normal progression."
	}
	for _, f := range flags {
		if f == RiskInjury {
			return "Readiness is limited by injury notes; prioritize easy load and recovery."
		}
	}
	for _, f := range flags {
		if f == RiskOvertraining {
			return "Readiness looks reduced from high intensity load; keep next sessions easy."
		}
	}
	return "Readiness is mixed due to recent load spike; reduce stress short term."
}

func windowDistanceKM(activities []*models.Activity, now time.Time, days int) float64 {
	cutoff := now.AddDate(0, 0, -days)
	var meters float64
	for _, a := range activities {
		if !a.StartTime.Before(cutoff) {
			meters += a.DistanceM
		}
	}
	return round1(meters / 1000.0)
}

func compactWorkout(a *models.Activity) CompactWorkout {
	w := CompactWorkout{
		ID:          a.ID,
		Date:        a.StartTime.Format(time.RFC3339),
		Type:        a.Type,
		Name:        a.Name,
		DistanceKM:  round2(a.DistanceM / 1000.0),
		DurationMin: a.MovingTimeS / 60,
	}
	if a.AvgHR.Valid {
		hr := int(a.AvgHR.Float64)
		w.AvgHR = &hr
	}
	if a.SufferScore.Valid {
		s := int(a.SufferScore.Float64)
		w.SufferScore = &s
	}
	if w.DistanceKM > 0 {
		pace := math.Round(float64(a.MovingTimeS)/math.Max(w.DistanceKM, 0.1)*10) / 10
		w.PaceSecPerKM = &pace
	}
	return w
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
