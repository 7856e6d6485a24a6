package quest

import "fmt"

// NextTask returns the objective the player should pursue next, phrased for a
// progress HUD. A state whose quest has not started yields the opening hint.
func NextTask(s State, r Rules) string {
	r = r.Normalize()
	switch s.CurrentStep {
	case NotStarted:
		return "Talk to the Octopus Barman"
	case TalkOcto1:
		return "Talk to the Cat Guy"
	case TalkCatGuy:
		if s.HasCatHair {
			return "Bring cat hair to the Octopus"
		}
		return "Get cat hair from the cat"
	case TalkOcto2:
		if !r.HasAllHerbs(s) {
			return fmt.Sprintf("Collect ingredients: Vines %d/%d, Berries %d/%d, Kimkim %d/%d",
				s.CollectedVines, r.RequiredVines,
				s.CollectedBerries, r.RequiredBerries,
				s.CollectedKimkim, r.RequiredKimkim)
		}
		return "Bring herbs to the Octopus"
	case CollectHerbs:
		return "Bring herbs to the Octopus"
	case TalkOcto3:
		if s.HasChalice {
			return "Bring chalice to the Octopus"
		}
		return "Find a golden Chalice"
	case CalisStep:
		return "Bring chalice to the Octopus"
	case TalkOcto4:
		return "Quest Complete!"
	default:
		return "Start the quest by talking to the Octopus"
	}
}
