package app

import (
	"context"
	"errors"

	"groupmgr/internal/groupapi"
	"groupmgr/internal/notify"
)

// actionExecutor composes the platform client and the Telegram notifier
// into the engine's Executor contract.
type actionExecutor struct {
	api *groupapi.Client
	tg  *notify.Service
}

// CreateGroupPost fails hard when no platform client is configured: rules
// with post_to_group cannot silently "succeed", they stay deferred until
// the operator fixes the config.
func (x *actionExecutor) CreateGroupPost(ctx context.Context, groupID, title, body, imageID string) error {
	if x.api == nil {
		return errors.New("group_api is not configured")
	}
	return x.api.CreateGroupPost(ctx, groupID, title, body, imageID)
}

// SendNotification is non-throwing: a disabled notifier reports true
// (nothing to deliver, nothing failed).
func (x *actionExecutor) SendNotification(ctx context.Context, title, body string) bool {
	if x.tg == nil {
		return true
	}
	return x.tg.SendNotification(ctx, title, body)
}
