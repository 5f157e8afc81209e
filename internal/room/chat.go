package room

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncroom/server/internal/domain"
)

// appendMessage appends msg to chat, evicts FIFO beyond ChatBound, and
// broadcasts new_message. Shared by send_message and the system messages
// participants.go emits.
func (a *Actor) appendMessage(r *domain.Room, msg *domain.Message) {
	r.Chat = append(r.Chat, msg)
	if len(r.Chat) > a.chatBound {
		evicted := r.Chat[:len(r.Chat)-a.chatBound]
		r.Chat = r.Chat[len(r.Chat)-a.chatBound:]
		for _, m := range evicted {
			delete(r.MessageReactions, m.ID)
		}
	}
	a.broadcaster.Broadcast(context.Background(), a.code, "new_message", msg, "")
}

// SendMessage appends a user chat message. The server does not
// deduplicate against client-side optimistic ids; it only guarantees a
// unique server id and a monotonic timestamp.
func (a *Actor) SendMessage(ctx context.Context, senderIdentity, senderName, senderAvatar, content, replyTo string) error {
	return a.submit(ctx, func(r *domain.Room) {
		msg := &domain.Message{
			ID:             uuid.NewString(),
			SenderIdentity: senderIdentity,
			SenderName:     senderName,
			SenderAvatar:   senderAvatar,
			Content:        content,
			Timestamp:      a.clock.Now(),
			Kind:           "user",
			ReplyTo:        replyTo,
		}
		a.appendMessage(r, msg)
		r.Touch(msg.Timestamp)
	})
}

// EditMessage updates content; authorized only for the message's own
// sender. Returns ErrForbidden for a non-author edit, ErrMessageNotFound
// for an unknown messageId.
func (a *Actor) EditMessage(ctx context.Context, callerIdentity, messageID, newContent string) error {
	var opErr error
	err := a.submit(ctx, func(r *domain.Room) {
		msg := findMessage(r, messageID)
		if msg == nil {
			opErr = domain.ErrMessageNotFound
			return
		}
		if msg.SenderIdentity != callerIdentity {
			opErr = domain.ErrForbidden
			return
		}
		msg.Content = newContent
		msg.Edited = true
		r.Touch(a.clock.Now())
		a.broadcaster.Broadcast(ctx, a.code, "message_updated", msg, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// DeleteMessage removes a message; same authorization as EditMessage.
func (a *Actor) DeleteMessage(ctx context.Context, callerIdentity, messageID string) error {
	var opErr error
	err := a.submit(ctx, func(r *domain.Room) {
		idx := -1
		for i, m := range r.Chat {
			if m.ID == messageID {
				idx = i
				break
			}
		}
		if idx == -1 {
			opErr = domain.ErrMessageNotFound
			return
		}
		if r.Chat[idx].SenderIdentity != callerIdentity {
			opErr = domain.ErrForbidden
			return
		}
		r.Chat = append(r.Chat[:idx], r.Chat[idx+1:]...)
		delete(r.MessageReactions, messageID)
		r.Touch(a.clock.Now())
		a.broadcaster.Broadcast(ctx, a.code, "message_deleted", map[string]interface{}{"id": messageID}, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// AddMessageReaction toggles callerIdentity's membership in
// messageReactions[id][emoji].userSet and rebroadcasts the full reactions
// table for that message.
func (a *Actor) AddMessageReaction(ctx context.Context, callerIdentity, messageID, emoji string) error {
	var opErr error
	err := a.submit(ctx, func(r *domain.Room) {
		msg := findMessage(r, messageID)
		if msg == nil {
			opErr = domain.ErrMessageNotFound
			return
		}

		table, ok := r.MessageReactions[messageID]
		if !ok {
			table = make(domain.ReactionTable)
			r.MessageReactions[messageID] = table
		}
		reaction, ok := table[emoji]
		if !ok {
			reaction = &domain.Reaction{UserSet: make(map[string]bool)}
			table[emoji] = reaction
		}

		if reaction.UserSet[callerIdentity] {
			delete(reaction.UserSet, callerIdentity)
		} else {
			reaction.UserSet[callerIdentity] = true
		}
		reaction.Count = len(reaction.UserSet)
		if reaction.Count == 0 {
			delete(table, emoji)
		}

		msg.Reactions = table
		r.Touch(a.clock.Now())
		a.broadcaster.Broadcast(ctx, a.code, "message_reaction_update", map[string]interface{}{
			"id":        messageID,
			"reactions": table,
		}, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// SendReaction broadcasts an ephemeral, non-persisted floating reaction.
func (a *Actor) SendReaction(ctx context.Context, callerIdentity, callerName, emoji string) error {
	return a.submit(ctx, func(r *domain.Room) {
		a.broadcaster.Broadcast(ctx, a.code, "reaction_received", map[string]interface{}{
			"emoji":    emoji,
			"identity": callerIdentity,
			"name":     callerName,
		}, "")
		r.Touch(a.clock.Now())
	})
}

func findMessage(r *domain.Room, id string) *domain.Message {
	for _, m := range r.Chat {
		if m.ID == id {
			return m
		}
	}
	return nil
}
