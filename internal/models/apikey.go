package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey stores only the sha256 hash of the secret; the plaintext secret is
// returned to the caller exactly once, at creation.
type APIKey struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	KeyID              string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"key_id"`
	SecretHash         string         `gorm:"type:varchar(255);not null" json:"-"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Name               string         `gorm:"type:varchar(100);not null" json:"name"`
	Description        string         `gorm:"type:text" json:"description,omitempty"`
	IsActive           bool           `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt          *time.Time     `gorm:"default:null" json:"expires_at,omitempty"`
	LastUsedAt         *time.Time     `gorm:"default:null" json:"last_used_at,omitempty"`
	UsageCount         int            `gorm:"not null;default:0" json:"usage_count"`
	AllowedOrigins     StringList     `gorm:"type:text" json:"allowed_origins,omitempty"`
	RateLimitPerMinute int            `gorm:"not null;default:100" json:"rate_limit_per_minute"`
	RateLimitPerDay    int            `gorm:"not null;default:10000" json:"rate_limit_per_day"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*k.ExpiresAt)
}

func (k *APIKey) IsValid() bool {
	return k.IsActive && !k.IsExpired()
}

// OriginAllowed reports whether the given origin host may use this key.
// An empty list allows every origin; entries of the form "*.example.com"
// match the bare domain and any subdomain.
func (k *APIKey) OriginAllowed(origin string) bool {
	if len(k.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range k.AllowedOrigins {
		if len(allowed) > 2 && allowed[:2] == "*." {
			suffix := allowed[2:]
			if origin == suffix || hasDomainSuffix(origin, suffix) {
				return true
			}
			continue
		}
		if origin == allowed {
			return true
		}
	}
	return false
}

func hasDomainSuffix(host, domain string) bool {
	return len(host) > len(domain)+1 && host[len(host)-len(domain)-1] == '.' &&
		host[len(host)-len(domain):] == domain
}
