package system

// Phase fixes the order work runs within a tick. Systems sharing a phase run
// in registration order.
type Phase int

const (
	PhaseInput     Phase = iota // event dispatch, duel transitions, action queues, packet intake
	PhaseMovement               // tile stepping, pending-intent walk logic
	PhaseCombat                 // attack execution, mob AI, damage
	PhaseResources              // gathering, cooking, processing, fire burnout
	PhasePost                   // visibility, broadcast flush, saves, cleanup
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseMovement:
		return "movement"
	case PhaseCombat:
		return "combat"
	case PhaseResources:
		return "resources"
	case PhasePost:
		return "post"
	default:
		return "unknown"
	}
}

// System is one unit of per-tick work.
type System interface {
	Phase() Phase
	Update(tick int64)
}
