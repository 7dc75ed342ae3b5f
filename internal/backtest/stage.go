package backtest

// ResultKind tells the runner how to proceed after a stage
type ResultKind int

const (
	// KindContinue passes the bar to the next stage
	KindContinue ResultKind = iota
	// KindSkip ends the bar without running the remaining stages
	KindSkip
	// KindExit closes the open position and ends the bar
	KindExit
)

func (k ResultKind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindExit:
		return "exit"
	default:
		return "continue"
	}
}

// StageResult is returned by every stage
type StageResult struct {
	Kind   ResultKind
	Price  float64
	Reason string
}

// Continue passes control to the next stage.
func Continue() StageResult { return StageResult{Kind: KindContinue} }

// Skip ends processing of the current bar.
func Skip() StageResult { return StageResult{Kind: KindSkip} }

// Exit forces a close of the open position at price.
func Exit(price float64, reason string) StageResult {
	return StageResult{Kind: KindExit, Price: price, Reason: reason}
}

// Stage is one step of the per-bar pipeline
type Stage interface {
	Name() string
	Process(ctx *Context) StageResult
}

// Resetter is implemented by stages that keep state between bars. The runner
// resets them before every run.
type Resetter interface {
	Reset()
}
