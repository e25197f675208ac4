package flash

import (
	"regexp"
	"strconv"
	"strings"
)

// Output markers recognised in odin4 output.
const (
	DefaultSetupMarker = "Setup Connection"
	DefaultNoiseMarker = "/dev/bus/usb/"
	DefaultStripToken  = ".lz4"
)

// progressToken matches "(37%)". Spaces inside the parentheses and a
// leading sign are tolerated, so "( 37 %)" and "(+37%)" are progress too.
// Only integers match; "(abc%)" and "(12.5%)" fall through to log text.
var progressToken = regexp.MustCompile(`\(\s*([+-]?\d+)\s*%\)`)

// Kind is the classification of one output line.
type Kind int

const (
	KindSuppressed Kind = iota
	KindLog
	KindProgress
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindProgress:
		return "progress"
	default:
		return "suppressed"
	}
}

// Classified is the result of classifying one line.
// Text is set for KindLog, Percent for KindProgress.
type Classified struct {
	Kind    Kind
	Text    string
	Percent int
}

// Rules configures classification.
type Rules struct {
	// SetupMarker ends the preamble. The marker line itself is hidden.
	SetupMarker string

	// NoiseMarker hides any line containing it.
	NoiseMarker string

	// StripToken is removed from log text for display.
	StripToken string
}

// DefaultRules returns the rules matching odin4 output.
func DefaultRules() Rules {
	return Rules{
		SetupMarker: DefaultSetupMarker,
		NoiseMarker: DefaultNoiseMarker,
		StripToken:  DefaultStripToken,
	}
}

// Classifier classifies the lines of one run. It holds the run's preamble
// flag and must not be shared between runs.
type Classifier struct {
	rules        Rules
	pastPreamble bool
}

// NewClassifier returns a classifier at the start of a run's preamble.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{
		rules:        rules,
		pastPreamble: rules.SetupMarker == "",
	}
}

// PastPreamble reports whether the setup marker has been seen.
func (c *Classifier) PastPreamble() bool {
	return c.pastPreamble
}

// Classify classifies a single line without its terminator.
func (c *Classifier) Classify(line string) Classified {
	if !c.pastPreamble {
		if strings.Contains(line, c.rules.SetupMarker) {
			c.pastPreamble = true
		}
		return Classified{Kind: KindSuppressed}
	}

	if c.rules.NoiseMarker != "" && strings.Contains(line, c.rules.NoiseMarker) {
		return Classified{Kind: KindSuppressed}
	}

	if percent, ok := parseProgress(line); ok {
		return Classified{Kind: KindProgress, Percent: percent}
	}

	text := line
	if c.rules.StripToken != "" {
		text = strings.ReplaceAll(text, c.rules.StripToken, "")
	}
	return Classified{Kind: KindLog, Text: text}
}

// parseProgress extracts the first "(N%)" token. Values outside [0,100]
// are rejected.
func parseProgress(line string) (int, bool) {
	m := progressToken.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}
