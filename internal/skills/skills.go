package skills

import (
	"fmt"
	"sort"
)

// Skill produces a canned response. arg is only meaningful for timer.
type Skill func(arg int) string

const (
	Trivia = "trivia"
	Joke   = "joke"
	Fact   = "fact"
	News   = "news"
	Timer  = "timer"
)

// MockHeadline is the news skill response, also used as the live news fallback.
const MockHeadline = "Headlines: Scientists discover new species in the Pacific Ocean."

type Registry struct {
	skills map[string]Skill
}

func NewRegistry() *Registry {
	return &Registry{skills: map[string]Skill{
		Trivia: func(int) string { return "Question: What is the capital of France? Answer: Paris." },
		Joke: func(int) string {
			return "Why did the scarecrow become a motivational speaker? Because he was outstanding in his field!"
		},
		Fact:  func(int) string { return "Did you know? The shortest war in history lasted 38 minutes." },
		News:  func(int) string { return MockHeadline },
		Timer: func(seconds int) string { return fmt.Sprintf("Timer set for %d seconds.", seconds) },
	}}
}

func (r *Registry) Run(name string, arg int) (string, error) {
	s, ok := r.skills[name]
	if !ok {
		return "", fmt.Errorf("unknown skill %q", name)
	}
	return s(arg), nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.skills))
	for n := range r.skills {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
