package rooms

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"liveroom/core"
)

type (
	RoomInfo struct {
		ID         string `json:"id"`
		Users      int    `json:"users"`
		PeakUsers  int    `json:"peak_users"`
		LastActive int64  `json:"last_active,omitempty"`
	}

	// ActiveRooms reports live member counts keyed by room id.
	ActiveRooms func() map[string]int
)

// HandleListRooms lists live rooms merged with the registry, busiest first.
func HandleListRooms(registry core.RoomRegistry, active ActiveRooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomMap := make(map[string]*RoomInfo)
		for id, count := range active() {
			roomMap[id] = &RoomInfo{ID: id, Users: count, PeakUsers: count}
		}

		if registry != nil {
			storedRooms, err := registry.ListRooms(r.Context())
			if err != nil {
				logrus.WithError(err).Warn("Failed to list rooms from registry")
			}
			for _, room := range storedRooms {
				entry, exists := roomMap[room.ID]
				if !exists {
					entry = &RoomInfo{ID: room.ID}
					roomMap[room.ID] = entry
				}
				merge(entry, room)
			}
		}

		roomList := make([]RoomInfo, 0, len(roomMap))
		for _, entry := range roomMap {
			roomList = append(roomList, *entry)
		}

		sort.Slice(roomList, func(i, j int) bool {
			if roomList[i].Users == roomList[j].Users {
				if roomList[i].LastActive == roomList[j].LastActive {
					return roomList[i].ID < roomList[j].ID
				}
				return roomList[i].LastActive > roomList[j].LastActive
			}
			return roomList[i].Users > roomList[j].Users
		})

		render.JSON(w, r, roomList)
	}
}

// HandleGetRoom returns one room. Live counts win over stored ones.
func HandleGetRoom(registry core.RoomRegistry, active ActiveRooms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		log := logrus.WithField("room_id", roomID)

		count, live := active()[roomID]
		info := RoomInfo{ID: roomID, Users: count, PeakUsers: count}

		found := live
		if registry != nil {
			room, err := registry.GetRoom(r.Context(), roomID)
			switch {
			case err == nil:
				found = true
				merge(&info, *room)
				if !live {
					info.Users = room.Viewers
				}
			case errors.Is(err, core.ErrRoomNotFound):
			default:
				log.WithField("error", err).Error("Failed to get room")
				http.Error(w, "Failed to get room", http.StatusInternalServerError)
				return
			}
		}

		if !found {
			log.Debug("Room not found")
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		render.JSON(w, r, info)
	}
}

// HandleDeleteRoom removes a room from the registry.
func HandleDeleteRoom(registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		err := registry.DeleteRoom(r.Context(), roomID)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to delete room")
			http.Error(w, "Failed to delete room", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func merge(entry *RoomInfo, room core.Room) {
	if room.PeakViewers > entry.PeakUsers {
		entry.PeakUsers = room.PeakViewers
	}
	if room.LastActive > 0 {
		entry.LastActive = room.LastActive
	}
}
