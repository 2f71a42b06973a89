package models

import "strings"

// RiskLevel buckets a risk score
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

var riskLevelLabels = map[string]RiskLevel{
	"low":    RiskLevelLow,
	"medium": RiskLevelMedium,
	"high":   RiskLevelHigh,
}

// ParseRiskLevel maps a label to a RiskLevel, falling back to LOW for unknown labels
func ParseRiskLevel(label string) RiskLevel {
	if level, ok := riskLevelLabels[strings.ToLower(strings.TrimSpace(label))]; ok {
		return level
	}
	return RiskLevelLow
}

// Risk factor names recorded on an assessment
const (
	RiskFactorFailures       = "failures"
	RiskFactorIPFailures     = "ip_failures"
	RiskFactorIPChanged      = "ip_changed"
	RiskFactorDeviceFanout   = "device_fanout"
	RiskFactorNovelDevice    = "novel_device"
	RiskFactorNovelUserAgent = "novel_user_agent"
)

// RiskAssessment is the bounded suspicion score attached to a recorded attempt
type RiskAssessment struct {
	Score               int       `json:"score"`
	Level               RiskLevel `json:"level"`
	RequiresHumanReview bool      `json:"requires_human_review"`
	Factors             []string  `json:"factors,omitempty"`
}
