package peer

import "github.com/immxrtalbeast/meetroom/internal/relay"

// accept is the single addressing check for offer, answer and ice-candidate.
// The relay broadcasts these to the whole room; only the addressee acts.
func accept(self string, sig relay.Signal) bool {
	if sig.From == "" || sig.From == self {
		return false
	}
	return sig.To == "" || sig.To == self
}
