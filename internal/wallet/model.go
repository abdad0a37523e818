package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Links are the provider URLs derived from the record's status and address.
type Links struct {
	Account  string `json:"account,omitempty"`
	Login    string `json:"login,omitempty"`
	Add      string `json:"add,omitempty"`
	Withdraw string `json:"withdraw,omitempty"`
	Activity string `json:"activity,omitempty"`
}

// Record is the persisted view of the linked external wallet.
type Record struct {
	Provider      string                     `json:"provider"`
	Address       string                     `json:"address,omitempty"`
	Token         string                     `json:"token,omitempty"`
	Status        Status                     `json:"status"`
	OneTimeString string                     `json:"one_time_string,omitempty"`
	UserName      string                     `json:"user_name,omitempty"`
	MemberID      string                     `json:"member_id,omitempty"`
	Links         Links                      `json:"links"`
	Fees          map[string]decimal.Decimal `json:"fees,omitempty"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the fees map.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Fees != nil {
		c.Fees = make(map[string]decimal.Decimal, len(r.Fees))
		for id, amount := range r.Fees {
			c.Fees[id] = amount
		}
	}
	return &c
}

// reset clears everything but the identity metadata.
func (r *Record) reset(status Status) {
	*r = Record{
		Provider:      r.Provider,
		Status:        status,
		OneTimeString: newOneTimeString(),
	}
}

// Capabilities describes what the provider allows the account to do.
type Capabilities struct {
	CanReceive bool `json:"can_receive"`
	CanSend    bool `json:"can_send"`
}

// ProviderUser is the account holder as reported by the provider.
type ProviderUser struct {
	Name     string
	MemberID string
	Verified bool
	Blocked  bool
}

// RedactAddress keeps only the first five characters of an account address.
func RedactAddress(address string) string {
	if len(address) <= 5 {
		return address
	}
	return address[:5]
}

func newOneTimeString() string {
	return uuid.NewString()
}
