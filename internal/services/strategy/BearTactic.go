package strategy

// BearTactic is the short-side slot. Spot trading cannot sell short, so it
// never produces a signal.
type BearTactic struct{}

func NewBearTactic() *BearTactic { return &BearTactic{} }

func (t *BearTactic) Name() string { return "bear_trend" }

func (t *BearTactic) Evaluate(*Snapshot) *RawSignal { return nil }
