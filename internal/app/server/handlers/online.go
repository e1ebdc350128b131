package handlers

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"whisper/internal/core/contracts"
	"whisper/internal/core/domain"
	"whisper/pkg/logging"
	"whisper/pkg/middleware"
)

// OnlineHandler reports the online set of a channel the caller may join.
// Users connected to other instances are known through the presence mirror.
type OnlineHandler struct {
	log      *slog.Logger
	hub      contracts.Registry
	presence contracts.PresenceStore
	ttl      time.Duration
	private  ChatProtocol
	group    ChatProtocol
}

func NewOnlineHandler(
	log *slog.Logger,
	hub contracts.Registry,
	presence contracts.PresenceStore,
	ttl time.Duration,
	private, group ChatProtocol,
) *OnlineHandler {
	return &OnlineHandler{log: log, hub: hub, presence: presence, ttl: ttl, private: private, group: group}
}

// Online handles GET /api/v1/channels/online?friend_id=|group_id=.
func (h *OnlineHandler) Online(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	proto, param := h.private, "friend_id"
	if r.URL.Query().Has("group_id") {
		proto, param = h.group, "group_id"
	}
	target, err := strconv.ParseInt(r.URL.Query().Get(param), 10, 64)
	if err != nil {
		http.Error(w, "friend_id or group_id is required", http.StatusBadRequest)
		return
	}
	channel, err := proto.Join(r.Context(), *user, target)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewOnlineUsers(h.online(r, channel)))
}

// online merges local connections with the mirror. A mirror outage degrades
// to the local view.
func (h *OnlineHandler) online(r *http.Request, channel domain.ChannelID) []int64 {
	ids := h.hub.OnlineUsers(channel)
	if h.presence == nil {
		return ids
	}
	mirrored, err := h.presence.Online(r.Context(), channel, h.ttl)
	if err != nil {
		logging.FromContext(r.Context(), h.log).WarnContext(r.Context(), "online handler - online - presence read failed",
			logging.Channel(channel), logging.Err(err))
		return ids
	}
	ids = append(ids, mirrored...)
	slices.Sort(ids)
	return slices.Compact(ids)
}
