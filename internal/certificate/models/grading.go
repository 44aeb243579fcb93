package models

const (
	AchievementPerfectScore = "Perfect Score"
	AchievementExcellence   = "Excellence Award"
	AchievementSpeedLearner = "Speed Learner"
)

var gradeBands = []struct {
	min   int
	grade string
}{
	{95, "A+"},
	{90, "A"},
	{85, "B+"},
	{80, "B"},
	{75, "C+"},
	{70, "C"},
	{65, "D"},
}

// GradeFor maps a 0-100 score to its letter grade.
func GradeFor(score int) string {
	for _, band := range gradeBands {
		if score >= band.min {
			return band.grade
		}
	}
	return "F"
}

// AchievementsFor derives achievement tags. A non-positive completion time is
// treated as unknown and never earns the speed tag.
func AchievementsFor(score int, completionHours, fastThresholdHours float64) []string {
	achievements := make([]string, 0, 3)
	if score >= 100 {
		achievements = append(achievements, AchievementPerfectScore)
	}
	if score >= 95 {
		achievements = append(achievements, AchievementExcellence)
	}
	if completionHours > 0 && fastThresholdHours > 0 && completionHours < fastThresholdHours {
		achievements = append(achievements, AchievementSpeedLearner)
	}
	return achievements
}
