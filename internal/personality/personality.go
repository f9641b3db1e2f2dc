// Package personality tracks player behavior patterns and how each NPC
// perceives the player: a five-dimension impression, behavioral trait
// counts, and cross-NPC awareness of what the player does with others.
package personality

import "regexp"

// Trait is a behavioral category detected from player input.
type Trait string

const (
	Aggressive Trait = "aggressive"
	Shy        Trait = "shy"
	Romantic   Trait = "romantic"
	Dominant   Trait = "dominant"
	Submissive Trait = "submissive"
	Curious    Trait = "curious"
	Teasing    Trait = "teasing"
	Protective Trait = "protective"
	Neutral    Trait = "neutral"
)

// ParseTrait reports whether s names a known trait.
func ParseTrait(s string) (Trait, bool) {
	switch Trait(s) {
	case Aggressive, Shy, Romantic, Dominant, Submissive, Curious, Teasing, Protective, Neutral:
		return Trait(s), true
	}
	return "", false
}

// Intensity is the tier of an observed trait, derived from how often it
// has occurred.
type Intensity string

const (
	Subtle   Intensity = "subtle"
	Moderate Intensity = "moderate"
	Strong   Intensity = "strong"
)

// Occurrence thresholds for intensity tiers.
const (
	moderateThreshold = 3
	strongThreshold   = 7
)

func intensityFor(occurrences int) Intensity {
	switch {
	case occurrences >= strongThreshold:
		return Strong
	case occurrences >= moderateThreshold:
		return Moderate
	default:
		return Subtle
	}
}

// Record tracks one behavioral trait for one NPC.
type Record struct {
	Occurrences int
	LastTurn    int
	Intensity   Intensity
}

// Impression dimensions, each clamped to [-100,100]. DominanceBalance is
// negative when the player dominates and positive when the NPC does.
type Impression struct {
	Trust            int
	Attraction       int
	Fear             int
	Curiosity        int
	DominanceBalance int
}

// Impression dimension names used by consequence tables and the deep
// analysis verdict.
const (
	DimTrust      = "trust"
	DimAttraction = "attraction"
	DimFear       = "fear"
	DimCuriosity  = "curiosity"
	DimDominance  = "dominance_balance"
)

// Link is one NPC's relationship to another: baseline rapport, how
// sensitive they are to the player's attention elsewhere, and how aware
// they are of it (0-100).
type Link struct {
	Rapport             int
	JealousySensitivity float64
	Awareness           int
}

// State is everything one NPC knows and feels about the player. Created
// lazily on first contact, never deleted within a session.
type State struct {
	Companion          string
	Behavioral         map[Trait]*Record
	Impression         Impression
	Links              map[string]*Link
	Archetype          string
	ArchetypeCacheTurn int
}

func newState(companion string) *State {
	return &State{
		Companion:          companion,
		Behavioral:         make(map[Trait]*Record),
		Links:              make(map[string]*Link),
		ArchetypeCacheTurn: -1,
	}
}

// behaviorPatterns maps each trait to its input matchers. Word lists
// cover English and Italian; one hit per trait per turn regardless of
// how many patterns match.
var behaviorPatterns = map[Trait][]*regexp.Regexp{
	Aggressive: {
		regexp.MustCompile(`(?i)\b(attack|hit|force|threat|angry|mad|shout|yell)`),
		regexp.MustCompile(`(?i)\b(ordina|comanda|minacci|colp|attacc)`),
	},
	Shy: {
		regexp.MustCompile(`(?i)\b(awkward|nervous|blush|stutter|look away|hesitate)`),
		regexp.MustCompile(`(?i)\b(imbarazz|nervos|arross|balbett|distogli)`),
	},
	Romantic: {
		regexp.MustCompile(`(?i)\b(love|kiss|hug|caress|beautiful|stunning|compliment)`),
		regexp.MustCompile(`(?i)\b(amo|baci|abbracc|carezz|bell|stupend|compliment)`),
	},
	Dominant: {
		regexp.MustCompile(`(?i)\b(obey|submit|control|command|dominate|order)`),
		regexp.MustCompile(`(?i)\b(obbedi|sottomett|controll|comand|domin|ordina)`),
	},
	Submissive: {
		regexp.MustCompile(`(?i)\b(sorry|please|thank|grateful|yield|apologize)`),
		regexp.MustCompile(`(?i)\b(scus|perdon|prego|grazie|ubbidi|ced)`),
	},
	Curious: {
		regexp.MustCompile(`(?i)\b(why|how|what|question|wonder|ask|investigate)`),
		regexp.MustCompile(`(?i)\b(perch[eé]|come|cosa|domand|chied|indaga)`),
	},
	Teasing: {
		regexp.MustCompile(`(?i)\b(teas|joke|mock|playful|smirk|flirt)`),
		regexp.MustCompile(`(?i)\b(stuzzic|scherz|flirt|gioc|sorrid)`),
	},
	Protective: {
		regexp.MustCompile(`(?i)\b(protect|defend|shield|save|help|rescue)`),
		regexp.MustCompile(`(?i)\b(protegg|difend|salv|aiut|soccorr)`),
	},
}

// traitOrder fixes evaluation order so repeated analysis of the same
// input is deterministic.
var traitOrder = []Trait{
	Aggressive, Shy, Romantic, Dominant, Submissive, Curious, Teasing, Protective,
}

// impactMatrix maps a detected trait to its impression deltas.
var impactMatrix = map[Trait]map[string]int{
	Aggressive: {DimTrust: -10, DimAttraction: -5, DimFear: 15, DimDominance: -10},
	Shy:        {DimTrust: 5, DimAttraction: 10, DimFear: -5, DimDominance: 5},
	Romantic:   {DimTrust: 5, DimAttraction: 15, DimCuriosity: 5},
	Dominant:   {DimAttraction: 5, DimFear: 10, DimDominance: -20},
	Submissive: {DimTrust: 5, DimFear: -10, DimDominance: 15},
	Curious:    {DimTrust: 5, DimCuriosity: 10},
	Teasing:    {DimAttraction: 10, DimCuriosity: 5, DimDominance: -5},
	Protective: {DimTrust: 15, DimAttraction: 5, DimFear: -10},
}

// archetypeNames maps a dominant trait to its archetype label.
var archetypeNames = map[Trait]string{
	Romantic:   "The Romantic",
	Dominant:   "The Dominant",
	Shy:        "The Shy Strategist",
	Aggressive: "The Aggressor",
	Curious:    "The Investigator",
	Teasing:    "The Playful Tease",
	Protective: "The Guardian",
	Submissive: "The Submissive",
}
