package models

import (
	"math"
	"time"
)

// MaxLifetime is the longest lifetime in seconds a time.Duration can hold.
const MaxLifetime = uint64(math.MaxInt64 / int64(time.Second))

// Sentence is one tokenized text as persisted by the store.
type Sentence struct {
	UID          string
	OriginalText string
	// Tokens holds the processed tokens separated by single spaces.
	Tokens string
	Lang   string
	// Lifetime is the retention in seconds, zero keeps the sentence forever.
	Lifetime uint64
	ExpireAt int64
}

func (s Sentence) ID() string {
	return s.UID
}

func (s Sentence) TTL() (time.Duration, bool) {
	if s.Lifetime == 0 {
		return 0, false
	}

	return time.Duration(min(s.Lifetime, MaxLifetime)) * time.Second, true
}
