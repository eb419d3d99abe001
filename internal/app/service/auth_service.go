package service

import (
	"context"
	"errors"
	"fmt"

	"codeduel/internal/common"
	"codeduel/internal/common/security"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/google/uuid"
)

const initialRating = 1200

type AuthService struct {
	userRepo repository.UserRepository
	cf       VerdictClient
}

func NewAuthService(userRepo repository.UserRepository, cf VerdictClient) *AuthService {
	return &AuthService{userRepo: userRepo, cf: cf}
}

type RegisterRequest struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	CodeforcesHandle string `json:"codeforces_handle,omitempty"`
}

type LoginRequest struct {
	LoginField string `json:"login_field"` // Can be username or email
	Password   string `json:"password"`
}

type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, common.ErrBadRequest
	}
	if len(req.Password) < 6 {
		return nil, common.Errorf("password must be at least 6 characters: %w", common.ErrValidation)
	}

	var handle *string
	if req.CodeforcesHandle != "" {
		// A handle may only be attached once Codeforces affirms it exists.
		if !s.cf.VerifyHandle(ctx, req.CodeforcesHandle) {
			return nil, common.ErrHandleUnverified
		}
		handle = &req.CodeforcesHandle
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:               uuid.NewString(),
		Username:         req.Username,
		Email:            req.Email,
		HashedPassword:   hashedPassword,
		CodeforcesHandle: handle,
		Rating:           initialRating,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Repo might return common.ErrConflict
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := security.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = "" // Clear password before returning
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if req.LoginField == "" || req.Password == "" {
		return nil, common.ErrBadRequest
	}

	// Try finding by email first, then by username
	user, err := s.userRepo.FindByEmail(ctx, req.LoginField)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			user, err = s.userRepo.FindByUsername(ctx, req.LoginField)
		}
	}

	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized // Generic message for security
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return nil, common.ErrUnauthorized
	}

	if err := s.userRepo.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}

	token, err := security.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = ""
	return user, nil
}
