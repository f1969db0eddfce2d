package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rtchat/internal/domain"
	"rtchat/internal/presence"
)

const (
	// GlobalRoom is the default room every connection joins.
	GlobalRoom = "global"

	dmPrefix = "dm:"
)

// DMRoomID computes the canonical room id for a two-party direct-message
// channel. The result is order-independent: both participants derive the
// same id without a lookup table.
func DMRoomID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("%s%s:%s", dmPrefix, ids[0], ids[1])
}

// DMParticipants extracts the two participant ids from a DM room id.
func DMParticipants(roomID string) (string, string, bool) {
	if !strings.HasPrefix(roomID, dmPrefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(roomID, dmPrefix), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Router derives canonical room ids and resolves the set of users a room
// event should reach.
type Router struct {
	users    domain.UserRepository
	registry *presence.Registry
}

func NewRouter(users domain.UserRepository, registry *presence.Registry) *Router {
	return &Router{users: users, registry: registry}
}

// DeriveRoomID picks the room for a message: an explicit room id wins, else a
// receiver implies the deterministic DM room, else the global room.
func (r *Router) DeriveRoomID(senderID, explicitRoomID, receiverID string) string {
	if explicitRoomID != "" {
		return explicitRoomID
	}
	if receiverID != "" {
		return DMRoomID(senderID, receiverID)
	}
	return GlobalRoom
}

// Recipients resolves who should be notified about an event in the room,
// minus excludeUserID (usually the acting user).
//
// DM rooms resolve to the two participants whether or not they are connected;
// a participant who has blocked the acting user is suppressed from fan-out
// (the message itself is still persisted so history stays consistent). Any
// other room resolves to the currently connected users joined to it.
func (r *Router) Recipients(ctx context.Context, roomID, excludeUserID string) ([]string, error) {
	if a, b, ok := DMParticipants(roomID); ok {
		var out []string
		for _, id := range []string{a, b} {
			if id == excludeUserID {
				continue
			}
			if excludeUserID != "" {
				u, err := r.users.GetByID(ctx, id)
				if err != nil {
					return nil, fmt.Errorf("resolve dm participant: %w", err)
				}
				if u != nil && u.IsBlocking(excludeUserID) {
					continue
				}
			}
			out = append(out, id)
		}
		return out, nil
	}

	var out []string
	for _, id := range r.registry.UsersInRoom(roomID) {
		if id != excludeUserID {
			out = append(out, id)
		}
	}
	return out, nil
}
