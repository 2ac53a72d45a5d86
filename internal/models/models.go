package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Roles stored on user documents.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Sign-in providers.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Session persistence modes.
const (
	PersistenceSession = "session"
	PersistenceDurable = "durable"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Config is the singleton row holding server-generated secrets.
type Config struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // 64 hex chars, generated on first boot
}

// User is a sign-in identity. PasswordHash is empty for federated-only
// accounts.
type User struct {
	BaseModel
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url"`
	Provider     string    `json:"provider" gorm:"not null;default:password"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// UserDocument is the per-identity profile document, keyed by user id. Its
// Role field is the only source of admin rights.
type UserDocument struct {
	UserID          string    `json:"user_id" gorm:"primaryKey;type:varchar(26)"`
	Role            string    `json:"role" gorm:"not null;default:user"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email"`
	PhotoURL        string    `json:"photo_url"`
	Bio             string    `json:"bio" gorm:"type:text"`
	Location        string    `json:"location"`
	Website         string    `json:"website"`
	BackgroundImage string    `json:"background_image"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Session is the server-side record of an issued token. Deleting it revokes
// the token.
type Session struct {
	BaseModel
	UserID      string     `json:"user_id" gorm:"index;not null"`
	Persistence string     `json:"persistence" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"index;not null"`
	LastAuthAt  time.Time  `json:"last_auth_at" gorm:"not null"` // last credential check, for sensitive operations
	RevokedAt   *time.Time `json:"revoked_at"`
	UserAgent   string     `json:"user_agent"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Active reports whether the session can still authenticate requests.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// PasswordReset is a single-use reset token. Only its hash is stored.
type PasswordReset struct {
	BaseModel
	UserID    string     `json:"user_id" gorm:"index;not null"`
	TokenHash string     `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt    *time.Time `json:"used_at"`
}

// FederatedHandoff carries a completed federated sign-in from the browser
// callback to the waiting client. Single use, short lived.
type FederatedHandoff struct {
	BaseModel
	CodeHash    string     `json:"-" gorm:"uniqueIndex;not null"`
	UserID      string     `json:"user_id" gorm:"not null"`
	Persistence string     `json:"persistence" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt      *time.Time `json:"used_at"`
}

// Upload records an object stored through the server.
type Upload struct {
	BaseModel
	Key         string `json:"key" gorm:"uniqueIndex;not null"`
	Folder      string `json:"folder" gorm:"index;not null"`
	ContentType string `json:"content_type" gorm:"not null"`
	Size        int64  `json:"size" gorm:"not null"`
	URL         string `json:"url" gorm:"not null"`
	UploaderID  string `json:"uploader_id" gorm:"index"`
}

// Post is a user-authored article.
type Post struct {
	BaseModel
	AuthorID      string    `json:"author_id" gorm:"index;not null"`
	Title         string    `json:"title" gorm:"not null"`
	Content       string    `json:"content" gorm:"type:text"`
	CoverImageURL string    `json:"cover_image_url"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Author *User `json:"author,omitempty" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&Config{}, &User{}, &UserDocument{}, &Session{}, &PasswordReset{},
		&FederatedHandoff{}, &Upload{}, &Post{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}

// FindByIDWithPreload finds a record by ID with preloading
func FindByIDWithPreload[T any](db *gorm.DB, id string, model *T, preloads ...string) error {
	query := db
	for _, preload := range preloads {
		query = query.Preload(preload)
	}
	return query.Where("id = ?", id).First(model).Error
}
