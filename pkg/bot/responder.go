package bot

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"unicode"

	"chatcore/pkg/timeutil"
)

type rule struct {
	name    string
	words   []string
	phrases []string
	match   func(text string) bool
	replies func(r *Responder) []string
}

func fixed(lines ...string) func(*Responder) []string {
	return func(*Responder) []string { return lines }
}

// Responder picks a canned reply for a message by keyword rules,
// first match wins.
type Responder struct {
	name string
	now  timeutil.Clock

	mu    sync.Mutex
	pick  func(n int) int
	rules []rule
}

func NewResponder(name string, now timeutil.Clock) *Responder {
	r := &Responder{name: name, now: timeutil.OrNow(now), pick: rand.Intn}
	r.rules = defaultRules()
	return r
}

// WithPicker replaces the random choice among candidate replies.
func (r *Responder) WithPicker(pick func(n int) int) *Responder {
	r.mu.Lock()
	r.pick = pick
	r.mu.Unlock()
	return r
}

// Respond returns the rule name that matched and the reply.
func (r *Responder) Respond(text string) (string, string) {
	lower := strings.ToLower(strings.TrimSpace(text))
	words := tokenize(lower)
	for _, ru := range r.rules {
		if !ru.matches(lower, words) {
			continue
		}
		return ru.name, r.choose(ru.replies(r))
	}
	return "default", r.choose(defaultReplies)
}

func (r *Responder) choose(options []string) string {
	if len(options) == 1 {
		return options[0]
	}
	r.mu.Lock()
	i := r.pick(len(options))
	r.mu.Unlock()
	return options[i%len(options)]
}

func (ru rule) matches(lower string, words map[string]struct{}) bool {
	for _, w := range ru.words {
		if _, ok := words[w]; ok {
			return true
		}
	}
	for _, p := range ru.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return ru.match != nil && ru.match(lower)
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		out[f] = struct{}{}
	}
	return out
}

var defaultReplies = []string{
	"That's interesting! Tell me more.",
	"I see. How can I help with that?",
	"Got it. What else would you like to talk about?",
	"I'm here to help. Could you say a bit more about what you need?",
}

func defaultRules() []rule {
	return []rule{
		{
			name:  "greeting",
			words: []string{"hello", "hi", "hey", "greetings"},
			replies: fixed(
				"Hello! How can I help you today?",
				"Hi there! How are you doing?",
				"Hey! What can I do for you?",
			),
		},
		{
			name:    "how_are_you",
			phrases: []string{"how are you", "how are u", "how r you"},
			replies: fixed(
				"I'm doing well, thanks for asking! How about you?",
				"All systems running smoothly. What can I do for you?",
			),
		},
		{
			name:  "help",
			words: []string{"help", "assist", "support"},
			replies: fixed("I can answer questions, tell you the time, share a joke, or just chat. " +
				"What would you like to do?"),
		},
		{
			name:  "time",
			words: []string{"time", "date", "today", "day"},
			replies: func(r *Responder) []string {
				now := r.now().UTC()
				return []string{fmt.Sprintf("It is %s UTC on %s.", now.Format("15:04:05"), now.Format("Monday, January 2, 2006"))}
			},
		},
		{
			name:    "thanks",
			words:   []string{"thank", "thanks", "thx"},
			phrases: []string{"thank you"},
			replies: fixed("You're welcome!", "Happy to help!", "Any time!"),
		},
		{
			name:    "goodbye",
			words:   []string{"bye", "goodbye", "farewell"},
			phrases: []string{"see you"},
			replies: fixed("Goodbye! Have a great day!", "See you later!", "Bye! Come back any time."),
		},
		{
			name:    "weather",
			words:   []string{"weather"},
			replies: fixed("I can't see live weather data, so a weather service will give you a better answer."),
		},
		{
			name:    "name",
			phrases: []string{"your name", "who are you"},
			replies: func(r *Responder) []string {
				return []string{fmt.Sprintf("I'm %s, the built-in assistant. I'm always online.", r.name)}
			},
		},
		{
			name:    "capabilities",
			words:   []string{"capabilities", "features"},
			phrases: []string{"what can you do"},
			replies: fixed("I can answer simple questions, tell the time, share jokes and keep you company."),
		},
		{
			name:  "joke",
			words: []string{"joke", "jokes"},
			replies: fixed(
				"Why don't programmers like nature? Too many bugs.",
				"I told my computer a joke about UDP. I'm not sure it got it.",
				"There are 10 kinds of people: those who read binary and those who don't.",
			),
		},
		{
			name:    "positive",
			words:   []string{"good", "great", "awesome", "excellent", "amazing"},
			replies: fixed("Glad to hear it!", "That's wonderful!", "Awesome! Anything else I can do?"),
		},
		{
			name:    "negative",
			words:   []string{"bad", "terrible", "awful", "hate", "stupid"},
			replies: fixed("Sorry to hear that. How can I make it better?", "I understand. Let me try to help."),
		},
		{
			name:  "question",
			match: func(s string) bool { return strings.HasSuffix(s, "?") },
			replies: fixed(
				"Good question! Could you give me a bit more detail?",
				"I'd like to help with that. Can you tell me more?",
			),
		},
	}
}
