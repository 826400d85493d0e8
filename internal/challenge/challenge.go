// Package challenge computes the numeric challenge token the Phind inference
// endpoint expects on every request.
//
// The token is derived in four steps: a canonical stringification of the
// request payload, a full percent-encoding of that string, a 32-bit rolling
// hash of the encoded form, and one step of a linear congruential generator
// parameterised by the seeds embedded in the search page.
package challenge

// Seeds are the generator parameters published by the search page under
// props.pageProps.challengeSeeds. They are fetched per request and never cached.
type Seeds struct {
	Multiplier float64 `json:"multiplier"`
	Addend     float64 `json:"addend"`
	Modulus    float64 `json:"modulus"`
}

// Seed returns the hash of the canonical, percent-encoded payload.
func Seed(payload map[string]any) int32 {
	return SimpleHash(QuoteAll(Stringify(payload)))
}

// Generate computes the challenge value for payload. The payload must not
// already contain the challenge key.
func Generate(payload map[string]any, seeds Seeds) float64 {
	return PRNG(Seed(payload), seeds)
}
