package player

// RepeatMode governs next() behavior at queue boundaries and per-track looping.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the wire name of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "none"
	}
}

// Cycle returns the next repeat mode in the none → all → one → none cycle.
func (m RepeatMode) Cycle() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}

// NavAction tells the caller what to do with the index returned by the
// navigation policy.
type NavAction int

const (
	// NavAdvance means load the track at the returned index.
	NavAdvance NavAction = iota
	// NavRestart means restart the current track from the beginning.
	NavRestart
	// NavStop means there is no further track; stop playback.
	NavStop
)

// PreviousRestartThreshold is the live offset (seconds) beyond which
// "previous" restarts the current track instead of moving back.
const PreviousRestartThreshold = 3.0

// NextIndex computes the index to play after the current track, given the
// queue length, cursor, shuffle flag and repeat mode. rnd must return a
// uniform value in [0, n); it is only consulted when shuffling.
//
// A single-track queue always wraps back onto itself, even with RepeatNone.
func NextIndex(length, current int, shuffle bool, repeat RepeatMode, rnd func(n int) int) (int, NavAction) {
	if length == 0 {
		return current, NavStop
	}

	if repeat == RepeatOne {
		return current, NavRestart
	}

	if length == 1 {
		return 0, NavAdvance
	}

	if shuffle {
		return rnd(length), NavAdvance
	}

	next := current + 1
	if next >= length {
		if repeat == RepeatAll {
			return 0, NavAdvance
		}
		return current, NavStop
	}
	return next, NavAdvance
}

// PrevIndex computes the index to play before the current track. When the
// live playback offset is past PreviousRestartThreshold, "previous" means
// restart the current track. Below zero the cursor wraps to the last index.
func PrevIndex(length, current int, offsetSeconds float64) (int, NavAction) {
	if length == 0 {
		return current, NavStop
	}

	if offsetSeconds > PreviousRestartThreshold {
		return current, NavRestart
	}

	prev := current - 1
	if prev < 0 {
		prev = length - 1
	}
	return prev, NavAdvance
}
