package coach

import "strings"

// Rule maps topic keywords to a canned answer.
type Rule struct {
	Keywords []string
	Response string
}

// DefaultRules are checked in order; the first rule with a matching keyword wins.
var DefaultRules = []Rule{
	{
		Keywords: []string{"stress", "anxiety", "anxious", "overwhelm"},
		Response: "When stress or anxiety builds up, start by slowing your breath: " +
			"breathe in for four counts, hold for four, and breathe out for six. " +
			"Repeat this for a few minutes while noticing where you feel tension in your body " +
			"and letting it soften. Short walks, limiting caffeine, and writing down what is " +
			"on your mind can also help. If these feelings persist or interfere with daily life, " +
			"consider reaching out to a mental health professional.",
	},
	{
		Keywords: []string{"meditat", "mindful"},
		Response: "A simple way to begin meditating is to sit comfortably for five minutes " +
			"and rest your attention on your breath. When your mind wanders, and it will, " +
			"gently notice where it went and return to the breath without judgement. " +
			"Consistency matters more than duration, so try practising at the same time each day " +
			"and slowly extend the session as it becomes familiar.",
	},
	{
		Keywords: []string{"sleep", "insomnia", "tired"},
		Response: "For better sleep, keep a regular bedtime and wake time, even on weekends. " +
			"Dim the lights and put screens away about an hour before bed, and keep your bedroom " +
			"cool and quiet. A short body-scan or slow breathing exercise in bed can help your " +
			"mind settle. If you cannot fall asleep after twenty minutes, get up and do something " +
			"calm until you feel drowsy.",
	},
}

// DefaultAnswer is served when no rule matches.
const DefaultAnswer = "Taking care of your wellbeing starts with small, steady habits. " +
	"Try a few minutes of slow breathing or quiet reflection each day, move your body in a " +
	"way you enjoy, stay connected with people who support you, and be patient with yourself. " +
	"If you are struggling, talking to a trusted person or a professional can make a real difference."

// Synthesize picks a canned answer for question. Matching is a
// case-insensitive substring check over each rule's keywords.
func Synthesize(question string, rules []Rule, fallback string) string {
	q := strings.ToLower(question)
	for _, r := range rules {
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" && strings.Contains(q, k) && strings.TrimSpace(r.Response) != "" {
				return r.Response
			}
		}
	}
	if strings.TrimSpace(fallback) == "" {
		return DefaultAnswer
	}
	return fallback
}
