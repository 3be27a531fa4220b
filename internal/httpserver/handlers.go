package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"rolegate/authbot/internal/audit"
	"rolegate/authbot/internal/platform"
	"rolegate/authbot/internal/settings"
)

const maxLogLimit = 500

// settingsRequest mirrors the dashboard form: roles, messages, general toggles
// and advanced limits. Omitted sections are left untouched.
type settingsRequest struct {
	Roles    *[]string `json:"roles"`
	Messages *struct {
		Success *string `json:"success"`
		Failure *string `json:"failure"`
	} `json:"messages"`
	General *struct {
		AutoAuth   *bool `json:"autoAuth"`
		DMNotify   *bool `json:"dmNotify"`
		LogActions *bool `json:"logActions"`
	} `json:"general"`
	Advanced *struct {
		Timeout  *int `json:"timeout"`
		Cooldown *int `json:"cooldown"`
	} `json:"advanced"`
}

func (req settingsRequest) patch() settings.Patch {
	p := settings.Patch{EnabledRoles: req.Roles}
	if req.Messages != nil {
		p.SuccessMessage = req.Messages.Success
		p.FailureMessage = req.Messages.Failure
	}
	if req.General != nil {
		p.AutoAuth = req.General.AutoAuth
		p.DMNotify = req.General.DMNotify
		p.LogActions = req.General.LogActions
	}
	if req.Advanced != nil {
		p.Timeout = req.Advanced.Timeout
		p.Cooldown = req.Advanced.Cooldown
	}
	return p
}

func registerSettingsHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/settings/", func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r, deps.AdminToken) {
			return
		}
		if deps.Settings == nil {
			writeError(w, http.StatusServiceUnavailable, "settings service unavailable")
			return
		}

		guildID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/settings/"))
		if guildID == "" || strings.Contains(guildID, "/") {
			writeError(w, http.StatusBadRequest, "invalid guild id")
			return
		}

		switch r.Method {
		case http.MethodGet:
			cfg, err := settings.GetOrCreate(r.Context(), deps.Settings, guildID)
			if err != nil {
				deps.Log.Error().Err(err).Str("guild_id", guildID).Msg("load settings failed")
				writeError(w, http.StatusInternalServerError, "get settings failed")
				return
			}
			writeJSON(w, http.StatusOK, cfg)
		case http.MethodPut, http.MethodPost:
			var req settingsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			cfg, err := settings.Upsert(r.Context(), deps.Settings, guildID, req.patch())
			if err != nil {
				if errors.Is(err, settings.ErrInvalidInput) {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				deps.Log.Error().Err(err).Str("guild_id", guildID).Msg("save settings failed")
				writeError(w, http.StatusInternalServerError, "save settings failed")
				return
			}
			deps.Log.Info().
				Str("guild_id", guildID).
				Str("rid", requestIDFromContext(r.Context())).
				Int("roles", len(cfg.EnabledRoles)).
				Msg("settings updated")
			writeJSON(w, http.StatusOK, cfg)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func registerLogHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !requireAdmin(w, r, deps.AdminToken) {
			return
		}
		if deps.Logs == nil {
			writeError(w, http.StatusServiceUnavailable, "audit log unavailable")
			return
		}

		guildID := strings.TrimSpace(r.URL.Query().Get("guild_id"))
		if guildID == "" {
			writeError(w, http.StatusBadRequest, "guild_id is required")
			return
		}
		limit := audit.DefaultListLimit
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxLogLimit)
		}

		entries, err := deps.Logs.List(r.Context(), guildID, limit)
		if err != nil {
			deps.Log.Error().Err(err).Str("guild_id", guildID).Msg("list audit entries failed")
			writeError(w, http.StatusInternalServerError, "list logs failed")
			return
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries})
	})
}

func registerSessionHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !requireAdmin(w, r, deps.AdminToken) {
			return
		}
		if deps.Sessions == nil {
			writeError(w, http.StatusServiceUnavailable, "session orchestrator unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": deps.Sessions.Active()})
	})
}

func registerDirectoryHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/guilds", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !requireAdmin(w, r, deps.AdminToken) {
			return
		}
		if deps.Directory == nil {
			writeError(w, http.StatusServiceUnavailable, "discord bot is not connected")
			return
		}
		guilds, err := deps.Directory.Guilds(r.Context())
		if err != nil {
			deps.Log.Error().Err(err).Msg("list guilds failed")
			writeError(w, http.StatusInternalServerError, "list guilds failed")
			return
		}
		if guilds == nil {
			guilds = []platform.Guild{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": guilds})
	})

	// /v1/guilds/{id}/roles
	mux.HandleFunc("/v1/guilds/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !requireAdmin(w, r, deps.AdminToken) {
			return
		}
		if deps.Directory == nil {
			writeError(w, http.StatusServiceUnavailable, "discord bot is not connected")
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/v1/guilds/")
		guildID, tail, ok := strings.Cut(rest, "/")
		guildID = strings.TrimSpace(guildID)
		if !ok || tail != "roles" || guildID == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		roles, err := deps.Directory.Roles(r.Context(), guildID)
		if err != nil {
			deps.Log.Error().Err(err).Str("guild_id", guildID).Msg("list roles failed")
			writeError(w, http.StatusInternalServerError, "list roles failed")
			return
		}
		markEnabled(r, deps, guildID, roles)
		if roles == nil {
			roles = []platform.Role{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": roles})
	})
}

// markEnabled flags the roles the guild grants on authentication. A guild
// without stored settings has none enabled.
func markEnabled(r *http.Request, deps Deps, guildID string, roles []platform.Role) {
	if deps.Settings == nil || len(roles) == 0 {
		return
	}
	cfg, err := deps.Settings.Get(r.Context(), guildID)
	if err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			deps.Log.Warn().Err(err).Str("guild_id", guildID).Msg("load settings for roles failed")
		}
		return
	}
	enabled := make(map[string]bool, len(cfg.EnabledRoles))
	for _, id := range cfg.EnabledRoles {
		enabled[id] = true
	}
	for i := range roles {
		roles[i].Enabled = enabled[roles[i].ID]
	}
}
