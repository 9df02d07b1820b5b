package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// User is the authentication principal. RefreshToken mirrors the raw value
// of the single currently-valid refresh token; both refresh columns are
// either set together or null together.
type User struct {
	ID                    string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email                 string     `gorm:"uniqueIndex;not null" json:"email"`
	Name                  string     `json:"name"`
	PasswordHash          string     `gorm:"not null" json:"-"`
	Role                  Role       `gorm:"type:text;not null;default:USER" json:"role"`
	EmailVerified         bool       `gorm:"not null;default:false" json:"email_verified"`
	RefreshToken          *string    `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Profile               *Profile   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// Profile holds the teacher-detail side record created together with the
// user at registration.
type Profile struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string    `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	NIP         *string   `gorm:"column:nip" json:"nip"`
	Institution *string   `json:"institution"`
	Position    *string   `json:"position"`
	Phone       *string   `json:"phone"`
	Address     *string   `json:"address"`
	AvatarURL   *string   `json:"avatar_url"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Achievement is a teacher's prestasi/sertifikat submission. Mutations are
// restricted to the owning user.
type Achievement struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string    `gorm:"type:uuid;index;not null" json:"user_id"`
	Title          string    `gorm:"not null" json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Issuer         string    `json:"issuer"`
	CertificateURL *string   `json:"certificate_url"`
	AchievedAt     time.Time `json:"achieved_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Achievement) TableName() string { return "achievements" }

func (a *Achievement) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// SanitizedUser is the only user shape that leaves the service. It never
// carries the password hash or refresh-token columns.
type SanitizedUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Profile       *Profile  `json:"profile,omitempty"`
}

func (u *User) Sanitize() *SanitizedUser {
	return &SanitizedUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		Profile:       u.Profile,
	}
}
