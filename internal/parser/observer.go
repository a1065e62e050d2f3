package parser

import "time"

// Observer receives parse events, e.g. for metrics. Implementations must be
// safe for concurrent use.
type Observer interface {
	ParseFinished(elapsed time.Duration, parts int, cancelled bool)
	AttachmentWrapped(guessedMimeType string)
	ErrorPart()
}

type nopObserver struct{}

func (nopObserver) ParseFinished(time.Duration, int, bool) {}
func (nopObserver) AttachmentWrapped(string)               {}
func (nopObserver) ErrorPart()                             {}
