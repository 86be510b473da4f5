// Package usersync pushes identity provider users into the remote user directory.
package usersync

import (
	"context"
	"fmt"

	"github.com/gogotex/usersync/internal/config"
	"github.com/gogotex/usersync/internal/directory"
	"github.com/gogotex/usersync/internal/events"
	"github.com/gogotex/usersync/pkg/logger"
)

// TokenStorer persists a login's token payload for a local user.
type TokenStorer interface {
	StoreTokens(ctx context.Context, userID string, payload map[string]any) error
}

// Directory performs the remote upsert.
type Directory interface {
	CreateOrUpdateUser(ctx context.Context, localUserID, subject string, data map[string]any) (directory.User, error)
}

// Dispatcher defers a sync to the work queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, localUserID, subject string, data map[string]any) error
}

type Service struct {
	tokens     TokenStorer
	directory  Directory
	notifier   events.Notifier
	dispatcher Dispatcher
	cfg        config.SyncConfig
	mapping    config.FieldMapping
}

func NewService(tokens TokenStorer, dir Directory, notifier events.Notifier, cfg config.SyncConfig, mapping config.FieldMapping) *Service {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &Service{tokens: tokens, directory: dir, notifier: notifier, cfg: cfg, mapping: mapping}
}

// WithDispatcher enables queued syncs. Without a dispatcher every sync runs inline.
func (s *Service) WithDispatcher(d Dispatcher) *Service {
	s.dispatcher = d
	return s
}

// MapUserData applies the configured field mapping.
func (s *Service) MapUserData(provider ProviderUser, local LocalUser) map[string]any {
	return MapUserData(s.mapping, provider, local)
}

// SyncUser stores the login tokens, if any, and pushes the user to the
// directory, either through the queue or inline depending on the sync mode.
// Nothing is sent when sync is disabled.
func (s *Service) SyncUser(ctx context.Context, provider ProviderUser, local LocalUser, tokens map[string]any) error {
	if local.ID == "" {
		return fmt.Errorf("%w: local user must have an id", ErrInvalidInput)
	}
	if provider.Subject == "" {
		return fmt.Errorf("%w: provider user must have sub or id", ErrInvalidInput)
	}
	log := logger.WithFields(logger.Fields{"local_user_id": local.ID, "keycloak_sub": provider.Subject})

	if len(tokens) > 0 {
		payload := make(map[string]any, len(tokens)+1)
		for k, v := range tokens {
			payload[k] = v
		}
		payload["keycloak_id"] = provider.Subject
		if err := s.tokens.StoreTokens(ctx, local.ID, payload); err != nil {
			return fmt.Errorf("store tokens: %w", err)
		}
	}

	if !s.cfg.Enabled {
		log.Debugf("user sync is disabled")
		return nil
	}

	data := s.MapUserData(provider, local)

	if s.cfg.Queued() && s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, local.ID, provider.Subject, data); err != nil {
			return fmt.Errorf("dispatch sync job: %w", err)
		}
		log.Infof("user sync job dispatched to queue %s", s.cfg.Queue)
		return nil
	}

	_, err := s.SyncUserDirectly(ctx, local.ID, provider.Subject, data)
	return err
}

// SyncUserDirectly runs the upsert now. The outcome is always notified; a
// failure is notified before the error is returned.
func (s *Service) SyncUserDirectly(ctx context.Context, localUserID, subject string, data map[string]any) (bool, error) {
	log := logger.WithFields(logger.Fields{"local_user_id": localUserID, "keycloak_sub": subject})
	log.Infof("starting user sync")

	res, err := s.directory.CreateOrUpdateUser(ctx, localUserID, subject, data)
	if err != nil {
		s.notifier.UserSyncFailed(ctx, events.SyncFailed{
			LocalUserID:     localUserID,
			ProviderSubject: subject,
			Message:         err.Error(),
			Code:            directory.ErrorCode(err),
		})
		return false, err
	}

	s.notifier.UserSynced(ctx, events.SyncSucceeded{LocalUserID: localUserID, ProviderSubject: subject, Response: res})
	log.Infof("user sync completed")
	return true, nil
}
