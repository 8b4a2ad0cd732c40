package revision

// Trust is the tri-state integrity marker carried by a revision
// (spec.md §3, glossary "Distrust").
type Trust string

const (
	Trusted    Trust = "TRUSTED"
	Verified   Trust = "VERIFIED"
	Distrusted Trust = "DISTRUSTED"
)
