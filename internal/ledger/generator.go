package ledger

import (
	"github.com/google/uuid"
)

// journalID derives a stable ID from the event reference so a
// replayed event regenerates byte-identical journal rows and the
// ON CONFLICT guard in persistence drops them.
func journalID(eventRef string, journalType JournalType) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("journal:"+journalType.String()+":"+eventRef))
}

// JournalGenerator translates accepted events into double-entry
// batches. It does not validate business rules; the engine has already
// decided the event is acceptable by the time a batch is generated.
type JournalGenerator struct {
	assetID AssetID
}

func NewJournalGenerator(assetID AssetID) *JournalGenerator {
	return &JournalGenerator{assetID: assetID}
}

// GenerateFundsAdded moves a contribution from the funding boundary
// into the pool's capital.
//
//	debit  pool:<id>:capital
//	credit external:funding
func (g *JournalGenerator) GenerateFundsAdded(poolID uuid.UUID, amount, sequence, timestampUs int64, eventRef string) *Batch {
	b := NewBatch()
	b.Add(Journal{
		JournalID:     journalID(eventRef, JournalTypeFundsAdded),
		Type:          JournalTypeFundsAdded,
		DebitAccount:  NewPoolAccountKey(poolID, g.assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalFunding, g.assetID),
		Amount:        amount,
		Sequence:      sequence,
		EventRef:      eventRef,
		TimestampUs:   timestampUs,
	})
	return b
}

// GeneratePremium books an exact premium payment into pool capital.
//
//	debit  pool:<id>:capital
//	credit external:premiums
func (g *JournalGenerator) GeneratePremium(poolID uuid.UUID, amount, sequence, timestampUs int64, eventRef string) *Batch {
	b := NewBatch()
	b.Add(Journal{
		JournalID:     journalID(eventRef, JournalTypePremium),
		Type:          JournalTypePremium,
		DebitAccount:  NewPoolAccountKey(poolID, g.assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalPremiums, g.assetID),
		Amount:        amount,
		Sequence:      sequence,
		EventRef:      eventRef,
		TimestampUs:   timestampUs,
	})
	return b
}

// GeneratePayout moves the fixed payout from pool capital to the
// policyholder's payout account. Capital sufficiency is checked by the
// engine before this is called.
//
//	debit  holder:<id>:payouts
//	credit pool:<id>:capital
func (g *JournalGenerator) GeneratePayout(poolID, holder uuid.UUID, amount, sequence, timestampUs int64, eventRef string) *Batch {
	b := NewBatch()
	b.Add(Journal{
		JournalID:     journalID(eventRef, JournalTypePayout),
		Type:          JournalTypePayout,
		DebitAccount:  NewHolderAccountKey(holder, g.assetID),
		CreditAccount: NewPoolAccountKey(poolID, g.assetID),
		Amount:        amount,
		Sequence:      sequence,
		EventRef:      eventRef,
		TimestampUs:   timestampUs,
	})
	return b
}
