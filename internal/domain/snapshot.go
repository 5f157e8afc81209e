package domain

import "time"

// Snapshot is the complete authoritative view of a room returned on
// create/join. CurrentTime is the *effective* position computed at the
// instant the snapshot was taken, not the stored anchor, so late joiners
// get drift-corrected state.
type Snapshot struct {
	RoomCode     string         `json:"roomCode"`
	RoomName     string         `json:"roomName"`
	Kind         Kind           `json:"kind"`
	HostIdentity string         `json:"hostIdentity"`
	Locked       bool           `json:"locked"`
	Users        []*Participant `json:"users"`
	VoiceUsers   []string       `json:"voiceUsers"`
	Chat         []*Message     `json:"chat"`
	Media        *Media         `json:"media,omitempty"`
	IsPlaying    bool           `json:"isPlaying"`
	CurrentTime  float64        `json:"currentTime"`
	ServerTime   time.Time      `json:"serverTime"`
}

// BuildSnapshot takes a read-only copy of Room at instant `now`. Callers
// in the room package invoke this from inside the actor's command loop,
// so no additional locking is required here.
func BuildSnapshot(r *Room, now time.Time) *Snapshot {
	users := make([]*Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		cp := *p
		users = append(users, &cp)
	}

	voice := make([]string, 0, len(r.VoiceMembers))
	for identity := range r.VoiceMembers {
		voice = append(voice, identity)
	}

	chat := make([]*Message, len(r.Chat))
	copy(chat, r.Chat)

	var media *Media
	if r.Media != nil {
		cp := *r.Media
		media = &cp
	}

	return &Snapshot{
		RoomCode:     r.Code,
		RoomName:     r.Name,
		Kind:         r.Kind,
		HostIdentity: r.HostIdentity,
		Locked:       r.Locked,
		Users:        users,
		VoiceUsers:   voice,
		Chat:         chat,
		Media:        media,
		IsPlaying:    r.Playback.Playing,
		CurrentTime:  r.Playback.EffectivePosition(now),
		ServerTime:   now,
	}
}
