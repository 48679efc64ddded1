package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Shivanand-hulikatti/event-lottery/internal/model"
	"github.com/Shivanand-hulikatti/event-lottery/internal/repository"
	"github.com/go-playground/validator/v10"
)

// ProfileService accepts local profile edits and hands them to the sync
// controllers. Callers never wait for the remote write.
type ProfileService struct {
	users      *UserSync
	organizers *OrganizerSync
	remote     UserProfileStore
	validate   *validator.Validate
}

// NewProfileService constructs a ProfileService.
func NewProfileService(docs repository.Documents, users *UserSync, organizers *OrganizerSync) *ProfileService {
	return &ProfileService{
		users:      users,
		organizers: organizers,
		remote:     NewUserProfileStore(docs),
		validate:   validator.New(),
	}
}

// UpdateUser applies the non-nil fields of req to the user's local profile.
func (p *ProfileService) UpdateUser(userID string, req model.UpdateProfileRequest) error {
	if strings.TrimSpace(userID) == "" {
		return validationf("user id is required")
	}
	if err := p.validate.Struct(req); err != nil {
		return fromValidator(err)
	}
	if req.Name == nil && req.Email == nil && req.Phone == nil {
		return validationf("no profile fields to update")
	}
	p.users.Edit(userID, func(u *model.User) {
		if req.Name != nil {
			u.SetName(*req.Name)
		}
		if req.Email != nil {
			u.SetEmail(*req.Email)
		}
		if req.Phone != nil {
			u.SetPhone(*req.Phone)
		}
	})
	return nil
}

// BecomeOrganizer raises the user to organizer and ensures an organizer record.
func (p *ProfileService) BecomeOrganizer(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return validationf("user id is required")
	}
	p.users.Edit(userID, func(u *model.User) {
		if u.Type < model.UserTypeOrganizer {
			u.SetType(model.UserTypeOrganizer)
		}
	})
	p.organizers.Edit(userID, func(*model.Organizer) {})
	return nil
}

// User returns the freshest known copy of a profile: the local copy when one
// is being synced, otherwise the remote record.
func (p *ProfileService) User(ctx context.Context, userID string) (*model.User, model.Existence, error) {
	if local, existence, ok := p.users.Snapshot(userID); ok {
		return &local, existence, nil
	}
	u, err := p.remote.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.ExistenceNonexistent, err
		}
		return nil, model.ExistenceUnknown, err
	}
	return u, model.ExistenceExistent, nil
}
