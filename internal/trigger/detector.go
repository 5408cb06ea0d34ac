// Package trigger matches spoken trigger phrases against transcripts and
// extracts the research topic.
package trigger

import (
	"strings"
)

// Kind classifies a matched trigger.
type Kind string

const (
	KindResearch  Kind = "research"
	KindNoteStart Kind = "note_start"
	KindStop      Kind = "stop"
)

// Mode selects which phrase lists apply. While a note is being recorded
// only stop phrases are live; otherwise research and note-start phrases are.
type Mode int

const (
	ModeListen Mode = iota
	ModeNote
)

// Match is a detected trigger.
type Match struct {
	Kind   Kind
	Phrase string // the configured phrase that matched, lowercase
	Topic  string // extracted topic, research triggers only
	Raw    string // the transcript the match came from
}

// fillers are discourse words stripped from the front of a topic.
var fillers = []string{"um", "uh", "like", "you know", "basically", "actually", "so", "well"}

// Detector matches transcripts against configured phrase lists. Matching
// is case-insensitive and anchored at the start of the transcript; when
// several phrases match, the longest wins. The detector is stateless and
// safe for concurrent use.
type Detector struct {
	research  []string
	noteStart []string
	stop      []string
}

// NewDetector creates a detector from phrase lists. Phrases are normalized
// to lowercase.
func NewDetector(research, noteStart, stop []string) *Detector {
	return &Detector{
		research:  normalize(research),
		noteStart: normalize(noteStart),
		stop:      normalize(stop),
	}
}

func normalize(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if s := strings.ToLower(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Detect checks a transcript for a trigger under the given mode. The same
// transcript always yields the same result.
func (d *Detector) Detect(text string, mode Mode) (Match, bool) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return Match{}, false
	}
	lower := strings.ToLower(clean)

	if mode == ModeNote {
		if phrase, ok := longestPrefix(lower, d.stop); ok {
			return Match{Kind: KindStop, Phrase: phrase, Raw: clean}, true
		}
		return Match{}, false
	}

	// Research wins over note-start when both lists could match,
	// unless a longer note-start phrase is the better anchor. A
	// research match with an empty topic is no match at all, so a
	// bare trigger phrase never fires an empty query.
	rPhrase, rOK := longestPrefix(lower, d.research)
	var topic string
	if rOK {
		if topic = ExtractTopic(clean, rPhrase); topic == "" {
			rOK = false
		}
	}
	nPhrase, nOK := longestPrefix(lower, d.noteStart)

	switch {
	case rOK && (!nOK || len(rPhrase) >= len(nPhrase)):
		return Match{Kind: KindResearch, Phrase: rPhrase, Topic: topic, Raw: clean}, true
	case nOK:
		return Match{Kind: KindNoteStart, Phrase: nPhrase, Raw: clean}, true
	default:
		return Match{}, false
	}
}

// longestPrefix returns the longest phrase that prefixes text at a word
// boundary.
func longestPrefix(text string, phrases []string) (string, bool) {
	var best string
	for _, p := range phrases {
		if len(p) <= len(best) {
			continue
		}
		if !strings.HasPrefix(text, p) {
			continue
		}
		// The phrase must end at a word boundary: "what is" must not
		// match "what isthmus".
		if len(text) > len(p) && !isBoundary(text[len(p)]) {
			continue
		}
		best = p
	}
	return best, best != ""
}

func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', ',', '.', '?', '!', ';', ':':
		return true
	default:
		return false
	}
}

// ExtractTopic returns the text following the trigger phrase with
// surrounding whitespace trimmed and leading filler words removed.
// Trailing punctuation is preserved so a question stays a question.
func ExtractTopic(text, phrase string) string {
	topic := strings.TrimSpace(text[len(phrase):])
	topic = strings.TrimLeft(topic, ",.;: \t")
	topic = strings.TrimSpace(topic)

	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(topic)
		for _, f := range fillers {
			if lower == f {
				return ""
			}
			if strings.HasPrefix(lower, f+" ") {
				topic = strings.TrimSpace(topic[len(f):])
				changed = true
				break
			}
		}
	}

	if topic != "" {
		topic = strings.ToUpper(topic[:1]) + topic[1:]
	}
	return topic
}
