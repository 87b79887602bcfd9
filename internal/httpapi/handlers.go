package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/deck"
	"github.com/pointdeck/pointdeck/internal/hub"
)

type createSessionRequest struct {
	Name          string   `json:"name"`
	ModeratorName string   `json:"moderatorName"`
	Deck          string   `json:"deck,omitempty"`
	CustomDeck    []string `json:"customDeck,omitempty"`
}

type createSessionResponse struct {
	RoomID      string `json:"roomId"`
	SessionName string `json:"sessionName"`
	ModeratorID string `json:"moderatorId"`
}

// CreateSession mints the room and the moderator's identity token. The
// moderator connects over the socket afterwards with the returned id.
func CreateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.ModeratorName == "" {
			http.Error(w, "name and moderatorName are required", http.StatusBadRequest)
			return
		}

		d, ok := deck.ByName(req.Deck)
		if !ok {
			http.Error(w, "unknown deck", http.StatusBadRequest)
			return
		}
		if len(req.CustomDeck) > 0 {
			d = deck.Custom(req.CustomDeck)
		}

		moderatorID := uuid.NewString()
		reply := make(chan hub.CreateResult, 1)
		h.Inbox() <- hub.CreateSession{
			Name:          req.Name,
			ModeratorID:   moderatorID,
			ModeratorName: req.ModeratorName,
			Deck:          d,
			Reply:         reply,
		}
		res := <-reply
		if res.Err != nil {
			log.Error("session create failed", zap.Error(res.Err))
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createSessionResponse{
			RoomID:      res.RoomID,
			SessionName: req.Name,
			ModeratorID: moderatorID,
		})
	}
}

func SessionExists(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "roomID")

		reply := make(chan bool, 1)
		h.Inbox() <- hub.SessionExists{Code: code, Reply: reply}
		exists := <-reply

		w.Header().Set("Content-Type", "application/json")
		if !exists {
			w.WriteHeader(http.StatusNotFound)
		}
		_ = json.NewEncoder(w).Encode(struct {
			Exists bool `json:"exists"`
		}{Exists: exists})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
