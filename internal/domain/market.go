package domain

import "time"

// MarketStatus represents the lifecycle state of a market. Transitions are
// monotonic: open -> closed -> resolved.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Side is one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ValidSide reports whether s is one of the two tradable sides.
func ValidSide(s Side) bool {
	return s == SideYes || s == SideNo
}

// Market is a yes/no prediction market.
type Market struct {
	ID              string
	CreatorID       string
	Title           string
	Description     string
	Category        string
	SourceLink      string // optional, empty when absent
	CloseDate       time.Time
	Status          MarketStatus
	ResolvedOutcome *Side // non-nil iff Status == resolved
	CreatedAt       time.Time
}

// Open reports whether the market still accepts bets.
func (m Market) Open() bool {
	return m.Status == MarketStatusOpen
}

// Resolution records an admin's final outcome declaration for a market.
type Resolution struct {
	MarketID   string
	Outcome    Side
	ResolverID string
	Notes      string
	CreatedAt  time.Time
}

// Categories is the fixed set of market categories.
var Categories = []string{
	"Deportes",
	"Política",
	"Economía",
	"IA",
	"Tecnología",
	"Cripto",
	"Cultura",
	"Influencers",
	"Sociedad",
	"Otros",
}

// ValidCategory reports whether c is a known market category.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}
