package auth

// OAuth scopes understood by the engagement API.
const (
	ScopeEngagementRead    = "engagement:read"
	ScopeEngagementWrite   = "engagement:write"
	ScopeAchievementsAdmin = "achievements:admin"
)
