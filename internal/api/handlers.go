// Package api exposes HTTP handlers for the engagement service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/engagement/internal/auth"
	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/engagement"
	"example.com/engagement/internal/persistence"
)

const maxAuditPageSize = 200

// Handler coordinates HTTP requests with the engagement service.
type Handler struct {
	service *engagement.Service
}

// NewHandler builds a Handler.
func NewHandler(service *engagement.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/me/profile", h.profile)
	mux.HandleFunc("GET /v1/me/achievements", h.achievements)
	mux.HandleFunc("GET /v1/me/notifications", h.notifications)
	mux.HandleFunc("POST /v1/me/notifications/read-all", h.markAllRead)
	mux.HandleFunc("POST /v1/me/notifications/{id}/read", h.markRead)
	mux.HandleFunc("GET /v1/me/notifications/audit", h.audit)
	mux.HandleFunc("PUT /v1/me/settings", h.updateSettings)
	mux.HandleFunc("POST /v1/tasks/{id}/complete", h.completeTask)
	mux.HandleFunc("POST /v1/habits/{id}/toggle", h.toggleHabit)
	mux.HandleFunc("GET /v1/teams/{id}/activity", h.teamActivity)
	mux.HandleFunc("PUT /v1/admin/achievements/{key}", h.upsertDefinition)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize returns the caller's claims when they carry one of scopes.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasAnyScope(scopes...) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementRead, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileView{
		ID:          profile.ID,
		Email:       profile.Email,
		Name:        profile.Name,
		XP:          profile.XP,
		Level:       profile.Level,
		NextLevelXP: profile.NextLevelXP,
		CreatedAt:   profile.CreatedAt,
	})
}

func (h *Handler) achievements(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementRead, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	views, err := h.service.GetAchievements(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]AchievementView, 0, len(views))
	for _, v := range views {
		items = append(items, AchievementView{
			ID:             v.ID,
			Key:            string(v.Key),
			Title:          v.Title,
			Description:    v.Description,
			Icon:           v.Icon,
			Category:       v.Category,
			IsUnlocked:     v.IsUnlocked,
			Progress:       v.Progress,
			Target:         v.Target,
			UnlockedAt:     v.UnlockedAt,
			UnlockedReason: v.UnlockedReason,
			Version:        v.Version,
		})
	}
	writeJSON(w, http.StatusOK, ListAchievementsResponse{Items: items})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementRead, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	list, err := h.service.GetNotifications(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]NotificationView, 0, len(list))
	for _, n := range list {
		items = append(items, toNotificationView(n))
	}
	writeJSON(w, http.StatusOK, ListNotificationsResponse{Items: items})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing notification id")
		return
	}
	if err := h.service.MarkNotificationRead(r.Context(), claims.Subject, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	count, err := h.service.MarkAllRead(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkAllReadResponse{Updated: count})
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementRead, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxAuditPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	rows, next, err := h.service.ListAudit(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]AuditView, 0, len(rows))
	for _, a := range rows {
		items = append(items, AuditView{
			ID:        a.ID,
			Type:      string(a.Type),
			Channel:   string(a.Channel),
			Reason:    a.Reason,
			CreatedAt: a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListAuditResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) teamActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementRead, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	rows, err := h.service.GetTeamActivity(r.Context(), claims.Subject, r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]TeamActivityView, 0, len(rows))
	for _, a := range rows {
		items = append(items, toTeamActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListTeamActivityResponse{Items: items})
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	update := engagement.SettingsUpdate{QuietHours: req.QuietHours}
	if len(req.Channels) > 0 {
		update.Channels = make(map[domain.NotificationType][]domain.Channel, len(req.Channels))
		for name, list := range req.Channels {
			channels := make([]domain.Channel, 0, len(list))
			for _, c := range list {
				channels = append(channels, domain.Channel(c))
			}
			update.Channels[domain.NotificationType(name)] = channels
		}
	}

	settings, err := h.service.UpdateSettings(r.Context(), claims.Subject, update)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	completion, err := h.service.CompleteTask(r.Context(), claims.Subject, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	task := completion.Task
	writeJSON(w, http.StatusOK, CompleteTaskResponse{
		TaskID:      task.ID,
		Status:      string(task.Status),
		CompletedAt: task.CompletedAt,
		Progress:    toProgressView(completion.Progress),
	})
}

func (h *Handler) toggleHabit(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeEngagementWrite)
	if !ok {
		return
	}

	var req ToggleHabitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}
	var day time.Time
	if req.Date != "" {
		parsed, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	toggle, err := h.service.ToggleHabit(r.Context(), claims.Subject, r.PathValue("id"), day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleHabitResponse{
		HabitID:   toggle.HabitID,
		Date:      toggle.Date.Format(time.DateOnly),
		Completed: toggle.Completed,
		Progress:  toProgressView(toggle.Progress),
	})
}

func (h *Handler) upsertDefinition(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeAchievementsAdmin); !ok {
		return
	}

	var req UpsertDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	def, err := h.service.UpsertDefinition(r.Context(), domain.AchievementDefinition{
		Key:         domain.AchievementKey(r.PathValue("key")),
		Title:       req.Title,
		Description: req.Description,
		Icon:        req.Icon,
		Category:    req.Category,
		Target:      req.Target,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DefinitionView{
		ID:          def.ID,
		Key:         string(def.Key),
		Title:       def.Title,
		Description: def.Description,
		Icon:        def.Icon,
		Category:    def.Category,
		Target:      def.Target,
		Version:     def.Version,
		UpdatedAt:   def.UpdatedAt,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrProgressConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
