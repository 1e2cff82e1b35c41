package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope partitions the chart of accounts.
type AccountScope uint8

const (
	// AccountScopePool holds the capital backing one insurance pool.
	AccountScopePool AccountScope = iota
	// AccountScopeHolder tracks cumulative payouts owed to one policyholder.
	AccountScopeHolder
	// AccountScopeExternal balances money crossing the system boundary.
	AccountScopeExternal
)

// AccountSubType distinguishes accounts within a scope.
type AccountSubType uint8

const (
	SubTypeCapital AccountSubType = iota
	SubTypePayouts
	SubTypeExternalFunding
	SubTypeExternalPremiums
)

// AssetID is a compact asset identifier used in account keys.
type AssetID uint16

const AssetETH AssetID = 1

var assetToID = map[string]AssetID{
	"ETH": AssetETH,
}

var idToAsset = map[AssetID]string{
	AssetETH: "ETH",
}

// AssetIDFor resolves an asset symbol to its identifier.
func AssetIDFor(symbol string) (AssetID, bool) {
	id, ok := assetToID[symbol]
	return id, ok
}

// AccountKey uniquely identifies a ledger account. It is comparable so
// it can be used as a map key in the balance tracker.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte
	SubType  AccountSubType
	AssetID  AssetID
}

// NewPoolAccountKey returns the capital account for a pool.
func NewPoolAccountKey(poolID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopePool,
		EntityID: poolID,
		SubType:  SubTypeCapital,
		AssetID:  assetID,
	}
}

// NewHolderAccountKey returns the payout account for a policyholder.
func NewHolderAccountKey(holder uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeHolder,
		EntityID: holder,
		SubType:  SubTypePayouts,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey returns a system boundary account. Only
// SubTypeExternalFunding and SubTypeExternalPremiums are valid here.
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

func (s AccountScope) String() string {
	switch s {
	case AccountScopePool:
		return "pool"
	case AccountScopeHolder:
		return "holder"
	case AccountScopeExternal:
		return "external"
	default:
		return "unknown"
	}
}

func (s AccountSubType) String() string {
	switch s {
	case SubTypeCapital:
		return "capital"
	case SubTypePayouts:
		return "payouts"
	case SubTypeExternalFunding:
		return "funding"
	case SubTypeExternalPremiums:
		return "premiums"
	default:
		return "unknown"
	}
}

// AccountPath renders a stable human-readable identifier, e.g.
// "pool:3f1a...:capital:ETH" or "external:funding:ETH". Paths are the
// persisted representation in projections and snapshots.
func (k AccountKey) AccountPath() string {
	asset, ok := idToAsset[k.AssetID]
	if !ok {
		asset = fmt.Sprintf("asset_%d", k.AssetID)
	}
	if k.Scope == AccountScopeExternal {
		return fmt.Sprintf("external:%s:%s", k.SubType, asset)
	}
	entity := uuid.UUID(k.EntityID)
	return fmt.Sprintf("%s:%s:%s:%s", k.Scope, entity, k.SubType, asset)
}

func parseSubType(s string) (AccountSubType, error) {
	switch s {
	case "capital":
		return SubTypeCapital, nil
	case "payouts":
		return SubTypePayouts, nil
	case "funding":
		return SubTypeExternalFunding, nil
	case "premiums":
		return SubTypeExternalPremiums, nil
	default:
		return 0, fmt.Errorf("unknown account subtype %q", s)
	}
}

// ParseAccountPath inverts AccountPath. It is used when restoring
// balances from a snapshot.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch len(parts) {
	case 3:
		if parts[0] != "external" {
			return AccountKey{}, fmt.Errorf("malformed account path %q", path)
		}
		subType, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		assetID, ok := assetToID[parts[2]]
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset %q in path %q", parts[2], path)
		}
		return NewExternalAccountKey(subType, assetID), nil
	case 4:
		entity, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("bad entity id in path %q: %w", path, err)
		}
		subType, err := parseSubType(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		assetID, ok := assetToID[parts[3]]
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset %q in path %q", parts[3], path)
		}
		var scope AccountScope
		switch parts[0] {
		case "pool":
			scope = AccountScopePool
		case "holder":
			scope = AccountScopeHolder
		default:
			return AccountKey{}, fmt.Errorf("unknown account scope %q", parts[0])
		}
		return AccountKey{Scope: scope, EntityID: entity, SubType: subType, AssetID: assetID}, nil
	default:
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}
}
