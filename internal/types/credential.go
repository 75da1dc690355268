package types

import (
	"time"

	"gorm.io/gorm"
)

// Exchange identifiers. Only Gemini has a live client today; the others are
// reserved so stored credentials survive a future rollout.
const (
	ExchangeGemini   = "gemini"
	ExchangeCoinbase = "coinbase"
	ExchangePaxos    = "paxos"
)

// Credential holds one exchange account's API keypair. The secret is write-only
// at the API boundary and must never appear in logs in full.
type Credential struct {
	gorm.Model   `json:"-"`
	CredentialID string    `gorm:"uniqueIndex" json:"credential_id"`
	Exchange     string    `json:"exchange"`
	APIKey       string    `json:"-"`
	APISecret    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// KeyLastSix returns the displayable tail of the API key, the only fragment
// the UI ever shows.
func (c *Credential) KeyLastSix() string {
	if len(c.APIKey) <= 6 {
		return c.APIKey
	}
	return c.APIKey[len(c.APIKey)-6:]
}
