package engagement

import "example.com/engagement/internal/domain"

// DefaultDefinitions returns the achievement catalogue installed by seeding.
func DefaultDefinitions() []domain.AchievementDefinition {
	return []domain.AchievementDefinition{
		{
			Key:         domain.AchievementFirstStrike,
			Title:       "First Strike",
			Description: "Complete your first objective.",
			Icon:        "target",
			Category:    "tasks",
			Target:      1,
		},
		{
			Key:         domain.AchievementFieldAgent,
			Title:       "Field Agent",
			Description: "Complete ten objectives.",
			Icon:        "briefcase",
			Category:    "tasks",
			Target:      10,
		},
		{
			Key:         domain.AchievementCriticalResponse,
			Title:       "Critical Response",
			Description: "Complete a critical priority objective.",
			Icon:        "siren",
			Category:    "tasks",
			Target:      1,
		},
		{
			Key:         domain.AchievementNeuralSyncBasic,
			Title:       "Neural Sync",
			Description: "Hold a three day habit streak.",
			Icon:        "link",
			Category:    "habits",
			Target:      3,
		},
		{
			Key:         domain.AchievementNeuralSyncElite,
			Title:       "Neural Sync Elite",
			Description: "Hold a thirty day habit streak.",
			Icon:        "brain",
			Category:    "habits",
			Target:      30,
		},
		{
			Key:         domain.AchievementRankAscension,
			Title:       "Rank Ascension",
			Description: "Reach level five.",
			Icon:        "chevrons-up",
			Category:    "progress",
			Target:      5,
		},
		{
			Key:         domain.AchievementVanguard,
			Title:       "Vanguard",
			Description: "Keep your account active for thirty days.",
			Icon:        "shield",
			Category:    "progress",
			Target:      30,
		},
	}
}
