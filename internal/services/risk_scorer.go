package services

import "github.com/BradenHooton/authgate/internal/models"

// Scoring constants, independent of the gating policy
const (
	riskFailureWeight   = 10
	riskFailureCap      = 40
	riskIPFailureWeight = 2
	riskIPFailureCap    = 25
	riskIPChanged       = 20
	riskFanoutWeight    = 3
	riskFanoutCap       = 20
	riskNovelDevice     = 10
	riskNovelUserAgent  = 10
	riskSuccessDiscount = 10
	riskMaxScore        = 100
	riskHighThreshold   = 70
	riskMediumThreshold = 35
)

// RiskSignals are the recent-activity facts the scorer combines
type RiskSignals struct {
	FailuresAfter                int
	IPFailuresInWindow           int
	IPChanged                    bool
	DistinctIdentifiersForDevice int
	NovelDevice                  bool
	NovelUserAgent               bool
	Success                      bool
}

// ScoreRisk turns activity signals into a bounded score in [0, 100] with a level.
// It is pure: identical signals always produce identical assessments.
func ScoreRisk(in RiskSignals) *models.RiskAssessment {
	score := 0
	factors := make([]string, 0, 6)

	add := func(points int, factor string) {
		if points > 0 {
			score += points
			factors = append(factors, factor)
		}
	}

	add(capped(in.FailuresAfter*riskFailureWeight, riskFailureCap), models.RiskFactorFailures)
	add(capped(in.IPFailuresInWindow*riskIPFailureWeight, riskIPFailureCap), models.RiskFactorIPFailures)
	if in.IPChanged {
		add(riskIPChanged, models.RiskFactorIPChanged)
	}
	add(capped(in.DistinctIdentifiersForDevice*riskFanoutWeight, riskFanoutCap), models.RiskFactorDeviceFanout)
	if in.NovelDevice {
		add(riskNovelDevice, models.RiskFactorNovelDevice)
	}
	if in.NovelUserAgent {
		add(riskNovelUserAgent, models.RiskFactorNovelUserAgent)
	}

	if in.Success {
		score -= riskSuccessDiscount
	}
	score = max(0, min(riskMaxScore, score))

	level := riskLevelFor(score)
	return &models.RiskAssessment{
		Score:               score,
		Level:               level,
		RequiresHumanReview: level == models.RiskLevelHigh,
		Factors:             factors,
	}
}

func riskLevelFor(score int) models.RiskLevel {
	switch {
	case score >= riskHighThreshold:
		return models.RiskLevelHigh
	case score >= riskMediumThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// capped clamps v to [0, limit]
func capped(v, limit int) int {
	return max(0, min(limit, v))
}
