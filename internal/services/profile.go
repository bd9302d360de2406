package services

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/store"
)

// ProfileService handles the caller's site profile
type ProfileService struct {
	repo  store.ProfileRepository
	authz auth.Authorizer
}

// NewProfileService creates a new profile service
func NewProfileService(repo store.ProfileRepository, authz auth.Authorizer) *ProfileService {
	return &ProfileService{
		repo:  repo,
		authz: authz,
	}
}

// Me returns the caller's profile, creating it on first use
func (s *ProfileService) Me(ctx context.Context, caller *auth.Identity) (*models.Profile, error) {
	if err := s.authz.Authorize(caller, auth.ManageProfile); err != nil {
		return nil, err
	}
	return s.repo.GetOrCreateProfile(ctx, caller.UserID)
}

// UpdateMe replaces the caller's phone number and birth date
func (s *ProfileService) UpdateMe(ctx context.Context, caller *auth.Identity, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := s.authz.Authorize(caller, auth.ManageProfile); err != nil {
		return nil, err
	}

	fields := map[string][]string{}
	phone := strings.TrimSpace(req.PhoneNumber)
	if utf8.RuneCountInString(phone) > 20 {
		fields["phone_number"] = append(fields["phone_number"], "Ensure this field has no more than 20 characters.")
	}
	if req.BirthDate != nil && req.BirthDate.After(time.Now()) {
		fields["birth_date"] = append(fields["birth_date"], "Birth date cannot be in the future.")
	}
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields, Err: models.ErrInvalidArgument}
	}

	profile, err := s.repo.GetOrCreateProfile(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	profile.PhoneNumber = phone
	profile.BirthDate = req.BirthDate
	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}

	log.Printf("[PROFILE] Profile updated: user_id=%d, profile_id=%d", caller.UserID, profile.ID)
	return profile, nil
}
