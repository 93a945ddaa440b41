package text

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// SegmentKind tells the scheduler whether a segment is spoken or a pause.
type SegmentKind int

const (
	KindContent SegmentKind = iota
	KindDelay
)

func (k SegmentKind) String() string {
	if k == KindDelay {
		return "delay"
	}

	return "content"
}

// Segment is one piece of a synthesis request. Delay segments hold exactly
// one punctuation character; content segments hold the raw text between
// delimiters.
type Segment struct {
	Kind    SegmentKind
	Payload string
}

var (
	delimiterPattern = regexp.MustCompile(`[,.?!;:]`)
	// Anything but word characters, whitespace and the delimiter set.
	strayPunctPattern = regexp.MustCompile(`[^\p{L}\p{Mn}\p{Nd}\p{Pc}\s,.?!;:]`)
)

// SplitDelimited splits s on the delimiter set and keeps every delimiter as
// its own piece. strings.Join(SplitDelimited(s), "") == s for every s.
func SplitDelimited(s string) []string {
	matches := delimiterPattern.FindAllStringIndex(s, -1)
	parts := make([]string, 0, 2*len(matches)+1)

	start := 0
	for _, m := range matches {
		if m[0] > start {
			parts = append(parts, s[start:m[0]])
		}

		parts = append(parts, s[m[0]:m[1]])
		start = m[1]
	}

	if start < len(s) {
		parts = append(parts, s[start:])
	}

	return parts
}

// Segments splits s into ordered content and delay segments, dropping
// whitespace-only pieces.
func Segments(s string) []Segment {
	parts := SplitDelimited(s)
	out := make([]Segment, 0, len(parts))

	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}

		kind := KindContent
		if delimiterPattern.MatchString(p) && len(p) == 1 {
			kind = KindDelay
		}

		out = append(out, Segment{Kind: kind, Payload: p})
	}

	return out
}

// CleanChunk replaces stray punctuation and symbols with spaces and trims
// the result. An empty return means there is nothing to speak.
func CleanChunk(s string) string {
	return strings.TrimSpace(strayPunctPattern.ReplaceAllString(s, " "))
}

// Delays holds the pause lengths keyed by punctuation class.
type Delays struct {
	Comma    time.Duration // , ; :
	Period   time.Duration // .
	Question time.Duration // ? !
}

// DelaysFromSeconds builds Delays from config values in seconds.
func DelaysFromSeconds(comma, period, question float64) Delays {
	return Delays{
		Comma:    secondsToDuration(comma),
		Period:   secondsToDuration(period),
		Question: secondsToDuration(question),
	}
}

// PauseFor returns the pause for a delay payload. ok is false for anything
// that is not a single delimiter.
func (d Delays) PauseFor(delim string) (pause time.Duration, ok bool) {
	switch delim {
	case ",", ";", ":":
		return d.Comma, true
	case ".":
		return d.Period, true
	case "?", "!":
		return d.Question, true
	default:
		return 0, false
	}
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}

	return time.Duration(math.Round(s * float64(time.Second)))
}
