package inventory

// ShadowModel is the engine's private belief about the remote platform's
// count: every confirmed push, every ingested order and every observed drift.
//
// Only this package can fold into it. Callers outside get Available and a
// copy of the entries.
type ShadowModel struct {
	ledger *Ledger
}

func NewShadowModel() *ShadowModel {
	return &ShadowModel{ledger: NewLedger()}
}

func (s *ShadowModel) Available() int64 { return s.ledger.Available() }

func (s *ShadowModel) Len() int { return s.ledger.Len() }

func (s *ShadowModel) Entries() []Adjustment { return s.ledger.Entries() }

func (s *ShadowModel) fold(adj Adjustment) {
	s.ledger.Append(adj)
}
