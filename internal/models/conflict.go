package models

// Strategy names the rule that settled a conflict.
type Strategy string

const (
	StrategyNone               Strategy = "none"
	StrategyNoOp               Strategy = "no_op"
	StrategyDeletionPrecedence Strategy = "deletion_precedence"
	StrategyStatusPrecedence   Strategy = "status_precedence"
	StrategyLastWriterWins     Strategy = "last_writer_wins"
)

// ConflictDecision is the ephemeral result of resolving a local mutation
// against the current remote state.
type ConflictDecision struct {
	WinningPayload  Fields              `json:"winning_payload"`
	Discarded       Fields              `json:"discarded,omitempty"` // локальные поля, которые проиграли
	Accepted        Fields              `json:"accepted,omitempty"`  // локальные поля, которые победили
	FieldStrategies map[string]Strategy `json:"field_strategies,omitempty"`
	Strategy        Strategy            `json:"strategy"`
	Deleted         bool                `json:"deleted"`
	Changed         bool                `json:"changed"` // требуется ли запись в хранилище
	LocalDiscarded  bool                `json:"local_discarded"`
}

// IsNoOp reports whether the decision leaves remote state untouched without
// being a real conflict.
func (d *ConflictDecision) IsNoOp() bool {
	return d.Strategy == StrategyNoOp
}
