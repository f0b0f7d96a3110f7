package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/cppla/relay/models"
	"github.com/cppla/relay/utils"
)

// Field limits for user records.
const (
	UsernameMinLen    = 3
	UsernameMaxLen    = 20
	PasswordMinLen    = 6
	passwordMaxBytes  = 72 // bcrypt ignores anything longer
	NameMaxLen        = 50
	BioMaxLen         = 500
	ProfilePictureMax = 512
)

// RegisterInput carries the fields accepted on registration.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName      *string
	LastName       *string
	Bio            *string
	ProfilePicture *string
	Password       *string
}

// PublicProfile is the user view safe to hand to clients. It never carries the password hash.
type PublicProfile struct {
	ID             uint      `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	FullName       string    `json:"fullName"`
	ProfilePicture string    `json:"profilePicture"`
	Bio            string    `json:"bio"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewPublicProfile projects u onto its public fields.
func NewPublicProfile(u models.User) PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		FullName:       u.FullName(),
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		CreatedAt:      u.CreatedAt,
	}
}

// NewOwnProfile is NewPublicProfile plus the email, for the account owner.
func NewOwnProfile(u models.User) PublicProfile {
	p := NewPublicProfile(u)
	p.Email = u.Email
	return p
}

// UserService is the credential store: it owns user records and password hashing.
type UserService struct {
	db   *gorm.DB
	cost int

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService creates a UserService hashing passwords at the given bcrypt cost.
func NewUserService(db *gorm.DB, cost int) *UserService {
	return &UserService{db: db, cost: cost}
}

// Create validates and persists a new user with a freshly hashed password.
func (s *UserService) Create(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)

	if n := utf8.RuneCountInString(username); n < UsernameMinLen || n > UsernameMaxLen {
		return nil, invalid("username", "username must be %d-%d characters long", UsernameMinLen, UsernameMaxLen)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validateName("firstName", "first name", firstName); err != nil {
		return nil, err
	}
	if err := validateName("lastName", "last name", lastName); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if taken, err := s.exists(db, "username = ?", username); err != nil {
		return nil, err
	} else if taken {
		return nil, &DuplicateError{Field: "username"}
	}
	if taken, err := s.exists(db, "email = ?", email); err != nil {
		return nil, err
	} else if taken {
		return nil, &DuplicateError{Field: "email"}
	}

	hash, err := utils.HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			// Lost a race with a concurrent registration; report which key collided.
			field := "email"
			if taken, _ := s.exists(db, "username = ?", username); taken {
				field = "username"
			}
			return nil, &DuplicateError{Field: field}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// FindByID looks a user up by primary key. A missing user yields ok=false and a nil error.
func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, bool, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	return found(&user, err)
}

// FindByEmail looks a user up by email, case-insensitively.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	return found(&user, err)
}

// VerifyPassword reports whether raw matches the stored hash.
func (s *UserService) VerifyPassword(user *models.User, raw string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return utils.CheckPassword(user.PasswordHash, raw)
}

// Authenticate resolves email+password to an active user.
// Unknown emails and wrong passwords fail identically with ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, ok, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Match the cost of the wrong-password path.
		utils.CheckPassword(s.timingHash(), password)
		return nil, ErrInvalidCredentials
	}
	if !s.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}
	return user, nil
}

// UpdateProfile applies a partial update. The password is re-hashed only when it actually changes.
func (s *UserService) UpdateProfile(ctx context.Context, id uint, upd ProfileUpdate) (*models.User, error) {
	user, ok, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	var columns []string
	if upd.FirstName != nil {
		v := strings.TrimSpace(*upd.FirstName)
		if err := validateName("firstName", "first name", v); err != nil {
			return nil, err
		}
		user.FirstName = v
		columns = append(columns, "first_name")
	}
	if upd.LastName != nil {
		v := strings.TrimSpace(*upd.LastName)
		if err := validateName("lastName", "last name", v); err != nil {
			return nil, err
		}
		user.LastName = v
		columns = append(columns, "last_name")
	}
	if upd.Bio != nil {
		v := utils.CleanText(*upd.Bio)
		if utf8.RuneCountInString(v) > BioMaxLen {
			return nil, invalid("bio", "bio must be less than %d characters", BioMaxLen)
		}
		user.Bio = v
		columns = append(columns, "bio")
	}
	if upd.ProfilePicture != nil {
		v := strings.TrimSpace(*upd.ProfilePicture)
		if len(v) > ProfilePictureMax {
			return nil, invalid("profilePicture", "profile picture reference is too long")
		}
		user.ProfilePicture = v
		columns = append(columns, "profile_picture")
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
		if !utils.CheckPassword(user.PasswordHash, *upd.Password) {
			hash, err := utils.HashPassword(*upd.Password, s.cost)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			user.PasswordHash = hash
			columns = append(columns, "password_hash")
		}
	}
	if len(columns) == 0 {
		return user, nil
	}
	user.UpdatedAt = time.Now().UTC()
	columns = append(columns, "updated_at")

	if err := s.db.WithContext(ctx).Model(user).Select(columns).Updates(user).Error; err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	return user, nil
}

// Deactivate soft-disables an account; its tokens stop resolving immediately.
func (s *UserService) Deactivate(ctx context.Context, id uint) error {
	user, ok, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if !user.IsActive {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(user).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate user %d: %w", id, err)
	}
	return nil
}

func (s *UserService) exists(db *gorm.DB, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := db.Model(&models.User{}).Where(query, args...).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check user uniqueness: %w", err)
	}
	return n > 0, nil
}

func (s *UserService) timingHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = utils.HashPassword("relay-timing-equalizer", s.cost)
	})
	return s.dummyHash
}

func found(user *models.User, err error) (*models.User, bool, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load user: %w", err)
	}
	return user, true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > 255 {
		return invalid("email", "email is invalid")
	}
	return nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < PasswordMinLen {
		return invalid("password", "password must be at least %d characters long", PasswordMinLen)
	}
	if len(pw) > passwordMaxBytes {
		return invalid("password", "password must be at most %d bytes long", passwordMaxBytes)
	}
	return nil
}

func validateName(field, label, v string) error {
	if v == "" {
		return invalid(field, "%s is required", label)
	}
	if utf8.RuneCountInString(v) > NameMaxLen {
		return invalid(field, "%s must be less than %d characters", label, NameMaxLen)
	}
	return nil
}
