package core

import "strings"

// Mood is the emotional tag recorded with a transaction.
type Mood string

const (
	MoodHappy    Mood = "happy"
	MoodNeutral  Mood = "neutral"
	MoodSad      Mood = "sad"
	MoodAngry    Mood = "angry"
	MoodFear     Mood = "fear"
	MoodGrateful Mood = "grateful"
)

// Moods lists the canonical set in display order.
var Moods = []Mood{MoodHappy, MoodNeutral, MoodSad, MoodAngry, MoodFear, MoodGrateful}

// legacy mood ids still sent by older clients
var moodAliases = map[string]Mood{
	"anxious": MoodFear,
	"regret":  MoodSad,
}

// IsCanonical reports whether m belongs to the canonical set.
func (m Mood) IsCanonical() bool {
	for _, c := range Moods {
		if m == c {
			return true
		}
	}
	return false
}

// NormalizeMood maps a raw mood to the canonical set. Known aliases are
// remapped, unknown non-empty values fall back to neutral and an empty
// value stays empty.
func NormalizeMood(raw string) Mood {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if m := Mood(raw); m.IsCanonical() {
		return m
	}
	if m, ok := moodAliases[raw]; ok {
		return m
	}
	return MoodNeutral
}

// DisplayMood returns the mood used for statistics, neutral when unset.
func DisplayMood(m Mood) Mood {
	if m == "" {
		return MoodNeutral
	}
	return m
}
