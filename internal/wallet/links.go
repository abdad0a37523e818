package wallet

import (
	"net/url"
	"strings"
)

// LinkConfig holds what is needed to build provider URLs.
type LinkConfig struct {
	WebURL   string
	ClientID string
}

const authorizeScopes = "accounts:read accounts:write cards:read cards:write user:read transactions:transfer:application transactions:transfer:others"

// GenerateLinks derives the provider URLs for the record. Card links are only
// produced for a verified wallet that has a card.
func GenerateLinks(record *Record, cfg LinkConfig) Links {
	base := strings.TrimRight(cfg.WebURL, "/")

	q := url.Values{}
	q.Set("scope", authorizeScopes)
	q.Set("intention", "kyc")
	q.Set("state", record.OneTimeString)

	links := Links{
		Account: base + "/dashboard",
		Login:   base + "/authorize/" + url.PathEscape(cfg.ClientID) + "?" + q.Encode(),
	}

	if record.Status == StatusVerified && record.Address != "" {
		card := base + "/dashboard/cards/" + url.PathEscape(record.Address)
		links.Add = card + "/add"
		links.Withdraw = card + "/use"
		links.Activity = card + "/activity"
	}
	return links
}
