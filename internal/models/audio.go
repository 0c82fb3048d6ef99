package models

// AudioFrame is a chunk of raw PCM samples produced by a capture device.
// A frame is consumed exactly once and not retained afterwards.
type AudioFrame struct {
	Seq  uint64
	Data []byte
}

// TranscriptKind distinguishes interim from final transcript results.
type TranscriptKind int

const (
	TranscriptPartial TranscriptKind = iota
	TranscriptFinal
)

func (k TranscriptKind) String() string {
	if k == TranscriptFinal {
		return "final"
	}
	return "partial"
}

// TranscriptEvent is a Partial or Final transcript produced from audio frames.
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
}

// IsFinal reports whether the event is a Final transcript.
func (e TranscriptEvent) IsFinal() bool {
	return e.Kind == TranscriptFinal
}
