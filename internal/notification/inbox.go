package notification

import (
	"context"
	"fmt"

	entity "casebridge/internal/domain/notification"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
)

func (o *Orchestrator) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]entity.Notification, error) {
	if offset < 0 {
		offset = 0
	}
	return o.store.Notifications.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

// MarkNotificationRead marks one of the user's notifications read. Re-marking is a no-op.
func (o *Orchestrator) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (entity.Notification, error) {
	n, err := o.store.Notifications.GetByID(ctx, id)
	if err != nil {
		return entity.Notification{}, fmt.Errorf("notification %s: %w", id, err)
	}
	if n.UserID != userID {
		return entity.Notification{}, casebridge_errors.ErrNotAuthorized
	}
	if n.IsRead {
		return n, nil
	}
	now := o.now()
	if err := o.store.Notifications.MarkRead(ctx, id, now); err != nil {
		return entity.Notification{}, err
	}
	n.IsRead = true
	n.ReadAt.Time, n.ReadAt.Valid = now, true
	return n, nil
}

func (o *Orchestrator) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return o.store.Notifications.MarkAllRead(ctx, userID, o.now())
}

func (o *Orchestrator) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return o.store.Notifications.CountUnread(ctx, userID)
}

// GetPreferences returns the effective preference for every known type.
func (o *Orchestrator) GetPreferences(ctx context.Context, userID uuid.UUID) ([]entity.Preference, error) {
	stored, err := o.store.Notifications.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[entity.Type]entity.Preference, len(stored))
	for _, p := range stored {
		byType[p.Type] = p
	}
	out := make([]entity.Preference, 0, len(entity.KnownTypes))
	for _, t := range entity.KnownTypes {
		if p, ok := byType[t]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, entity.DefaultPreference(userID, t))
	}
	return out, nil
}

func (o *Orchestrator) SetPreference(ctx context.Context, pref entity.Preference) (entity.Preference, error) {
	if pref.UserID == uuid.Nil || !knownType(pref.Type) {
		return entity.Preference{}, fmt.Errorf("unknown notification type %q: %w", pref.Type, casebridge_errors.ErrInvalidInput)
	}
	pref.UpdatedAt = o.now()
	if err := o.store.Notifications.UpsertPreference(ctx, &pref); err != nil {
		return entity.Preference{}, err
	}
	return pref, nil
}

func knownType(t entity.Type) bool {
	for _, k := range entity.KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}
