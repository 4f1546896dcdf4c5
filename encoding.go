package chatrelay

// EncoderFactory produces per-request token encodings. Encodings are
// model-family specific: two model families may require two different
// encoders, and picking the wrong one skews accounting without failing
// the request.
type EncoderFactory interface {
	// Acquire returns an encoding for the given model. The caller owns it
	// for the duration of one request and must call Release on every exit
	// path.
	Acquire(model string) (Encoding, error)
}

// Encoding converts text to a token count.
type Encoding interface {
	// Count returns the number of tokens the text encodes to.
	Count(text string) int

	// Release returns the encoding's resources.
	Release()
}

// heuristicFactory is the default EncoderFactory. It accepts every model
// and counts with the byte-length heuristic.
type heuristicFactory struct{}

func (heuristicFactory) Acquire(string) (Encoding, error) { return heuristicEncoding{}, nil }

type heuristicEncoding struct{}

func (heuristicEncoding) Count(text string) int { return HeuristicCount(text) }
func (heuristicEncoding) Release()              {}
