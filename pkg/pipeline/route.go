package pipeline

// Next is the pure routing function over the stage graph: given the record's
// current state it returns the next stage to execute. The two conditional
// branch points are after interpretation (generic questions divert to the
// capabilities responder) and after answer synthesis (failed or absent
// execution results skip straight to the confidence assessment).
func Next(r *Record) Stage {
	switch r.Status {
	case StageCreated:
		return StageInterpreting
	case StageInterpreting:
		if r.Intent != nil && r.Intent.IsGeneric {
			return StageCapabilities
		}
		return StageSelectingSources
	case StageSelectingSources:
		return StagePlanning
	case StagePlanning:
		return StageGenerating
	case StageGenerating:
		return StageExecuting
	case StageExecuting:
		return StageAnswering
	case StageAnswering:
		if r.ExecutionResults == nil || !r.ExecutionResults.Success {
			return StageAssessing
		}
		return StageAnalyzing
	case StageAnalyzing:
		return StageVisualizing
	case StageVisualizing:
		return StageAssessing
	default:
		// Unreachable for well-formed records; terminal states never reach
		// the router.
		return StageFailed
	}
}
