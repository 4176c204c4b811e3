package services

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"roomchat/internal/database"
	apperr "roomchat/internal/errors"
	"roomchat/internal/membership"
	"roomchat/internal/models"
	"roomchat/pkg/logger"
)

// AttemptLimiter throttles password attempts per key.
type AttemptLimiter interface {
	Allow(key string) bool
	Reset(key string)
}

type unlimited struct{}

func (unlimited) Allow(string) bool { return true }
func (unlimited) Reset(string)      {}

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	Room *models.Room
	// Member is the caller's stored entry in the room.
	Member models.Member
	// Admitted is true when the caller was not a member before.
	Admitted bool
}

type RoomService struct {
	db       database.Directory
	access   *roomAccess
	limiter  AttemptLimiter
	validate *validator.Validate
	log      zerolog.Logger
}

func NewRoomService(db database.Directory, limiter AttemptLimiter) *RoomService {
	if limiter == nil {
		limiter = unlimited{}
	}
	log := logger.Module("services.room")
	return &RoomService{
		db:       db,
		access:   &roomAccess{db: db, log: log},
		limiter:  limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, user *models.Identity) (*models.Room, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	password := strings.TrimSpace(req.Password)

	if req.Name == "" {
		return nil, apperr.Validation("Room name is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	visibility := models.ParseVisibility(req.Type)
	if visibility == models.VisibilityPrivate && len(password) < minRoomPasswordLength {
		return nil, apperr.Validationf("Private rooms require a password of at least %d characters", minRoomPasswordLength)
	}

	if _, err := s.db.FindRoomByName(ctx, req.Name); err == nil {
		return nil, apperr.Conflict("Room name already exists")
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, storageError(err, apperr.ErrNotFound)
	}

	creator := membership.Snapshot(user, models.RoleAdmin)
	data := &models.NewRoom{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  visibility,
		Members:     models.KeyedStore(map[string]models.Member{creator.ID: creator}),
		Admins:      models.KeyedStore(map[string]models.Member{creator.ID: creator}),
		CreatedBy:   creator,
	}
	if visibility == models.VisibilityPrivate {
		data.PasswordHash = HashRoomPassword(password)
	}

	room, err := s.db.CreateRoom(ctx, data)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, apperr.Conflict("Room name already exists")
	}
	if err != nil {
		return nil, storageError(err, apperr.ErrNotFound)
	}

	s.log.Info().Str("room", room.ID).Str("name", room.Name).Str("type", string(visibility)).Str("user", user.ID).Msg("room created")
	return room, nil
}

func (s *RoomService) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rooms, err := s.db.ListRooms(ctx)
	if err != nil {
		return nil, storageError(err, apperr.ErrNotFound)
	}
	return rooms, nil
}

// GetRoom loads a room, healing legacy membership stores on the way.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	loaded, err := s.access.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return loaded.room, nil
}

// JoinRoom authorizes user for roomID and adds them to its members.
// Existing members are let in without a password. Nothing is written when
// authorization fails.
func (s *RoomService) JoinRoom(ctx context.Context, roomID string, user *models.Identity, password string) (*JoinResult, error) {
	loaded, err := s.access.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if existing, ok := loaded.member(user.ID); ok {
		return &JoinResult{Room: loaded.room, Member: existing}, nil
	}

	if loaded.room.RequiresPassword() {
		if err := s.checkPassword(ctx, loaded.room, user, password); err != nil {
			return nil, err
		}
	}

	loaded, member, admitted, err := s.access.admit(ctx, roomID, user)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Room: loaded.room, Member: member, Admitted: admitted}, nil
}

func (s *RoomService) checkPassword(ctx context.Context, room *models.Room, user *models.Identity, password string) error {
	input := strings.TrimSpace(password)
	if input == "" {
		s.log.Warn().Str("room", room.ID).Str("user", user.ID).Msg("join without password")
		return apperr.ErrPasswordRequired
	}

	key := user.ID + ":" + room.ID
	if !s.limiter.Allow(key) {
		s.log.Warn().Str("room", room.ID).Str("user", user.ID).Msg("join attempts throttled")
		return apperr.ErrRateLimited
	}

	ok, upgrade := MatchRoomPassword(room.PasswordHash, input)
	if !ok {
		s.log.Warn().Str("room", room.ID).Str("user", user.ID).Msg("room password mismatch")
		return apperr.ErrPasswordIncorrect
	}
	s.limiter.Reset(key)

	if upgrade {
		hashed := HashRoomPassword(input)
		if err := s.db.MergeRoomFields(ctx, room.ID, models.RoomFields{PasswordHash: &hashed}); err != nil {
			return storageError(err, apperr.ErrRoomNotFound)
		}
		room.PasswordHash = hashed
		s.log.Info().Str("room", room.ID).Msg("upgraded legacy room password")
	}
	return nil
}

// LeaveRoom removes user from the persisted members of roomID.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID string, user *models.Identity) (*models.Room, error) {
	loaded, err := s.access.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if _, ok := loaded.member(user.ID); ok {
		if err := s.db.RemoveRoomMember(ctx, roomID, user.ID); err != nil {
			return nil, storageError(err, apperr.ErrRoomNotFound)
		}
		s.log.Info().Str("room", roomID).Str("user", user.ID).Msg("member left")
	}

	return s.GetRoom(ctx, roomID)
}

// CanView reports whether user may see live details of roomID: anyone for
// public rooms, members only for password protected ones.
func (s *RoomService) CanView(ctx context.Context, roomID string, user *models.Identity) error {
	loaded, err := s.access.load(ctx, roomID)
	if err != nil {
		return err
	}
	if !loaded.room.RequiresPassword() {
		return nil
	}
	if _, ok := loaded.member(user.ID); ok {
		return nil
	}
	return apperr.Forbidden("Join the room to see who is online")
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "max":
			return apperr.Validationf("%s must be at most %s characters", strings.ToLower(fe.Field()), fe.Param())
		case "oneof":
			return apperr.Validationf("%s must be one of: %s", strings.ToLower(fe.Field()), fe.Param())
		default:
			return apperr.Validationf("%s is invalid", strings.ToLower(fe.Field()))
		}
	}
	return apperr.ErrValidation.WithCause(err)
}
