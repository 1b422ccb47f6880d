package driftline

import (
	"strings"
)

// Topic is the conversational subject a student message is about.
type Topic string

const (
	TopicNone     Topic = ""
	TopicGreeting Topic = "greeting"
	TopicWork     Topic = "work"
	TopicPain     Topic = "pain"
	TopicFeelings Topic = "feelings"
	TopicFamily   Topic = "family"
	TopicMode     Topic = "mode" // fallback replies keyed by mode alone
)

type topicSignals struct {
	topic   Topic
	signals []string
}

// Checked in order; the first topic with any signal present wins.
var topicOrder = []topicSignals{
	{TopicWork, []string{"work", "job", "boss", "brother", "supervisor"}},
	{TopicPain, []string{"pain", "hurt", "physical", "body"}},
	{TopicFeelings, []string{"feel", "feeling", "emotion"}},
	{TopicFamily, []string{"family", "dad", "sister", "parent"}},
}

var (
	greetingWords   = []string{"hi", "hello", "hey"}
	greetingPhrases = []string{"good morning", "good afternoon"}
	crisisTerms     = []string{"safe", "hurt yourself", "suicide", "end", "can't take"}
)

// DetectTopic returns the first topic whose keywords appear in the message.
func DetectTopic(message string) Topic {
	lower := strings.ToLower(message)
	for _, ts := range topicOrder {
		if containsAny(lower, ts.signals) {
			return ts.topic
		}
	}
	return TopicNone
}

// IsGreeting reports whether the message opens with a greeting. Single greeting words
// must appear as whole words so that "this" is not read as "hi".
func IsGreeting(message string) bool {
	lower := strings.ToLower(message)
	if containsAny(lower, greetingPhrases) {
		return true
	}
	for _, tok := range strings.FieldsFunc(lower, notLetter) {
		for _, w := range greetingWords {
			if tok == w {
				return true
			}
		}
	}
	return false
}

// IsCrisisQuery reports whether the message asks about safety or self-harm.
func IsCrisisQuery(message string) bool {
	return containsAny(strings.ToLower(message), crisisTerms)
}

func notLetter(r rune) bool {
	return !(r >= 'a' && r <= 'z') && r != '\''
}

// Fact relevance categories. A fact gains weight for each category that both the
// student's message and the fact mention.
var factCategories = map[string][]string{
	"work":    {"work", "job", "boss", "career", "coworker", "supervisor", "shift", "office", "construction"},
	"family":  {"family", "dad", "mom", "brother", "sister", "parent", "son", "daughter", "wife", "husband"},
	"pain":    {"pain", "hurt", "ache", "injury", "physical", "body", "knee", "back"},
	"mental":  {"feel", "stress", "anxiety", "panic", "worry", "scared", "overwhelm"},
	"social":  {"friend", "people", "social", "lonely", "isolated", "relationship"},
	"leisure": {"hobby", "fun", "enjoy", "free time", "weekend", "relax", "game", "gaming"},
	"future":  {"future", "plan", "goal", "retirement", "college", "next", "change"},
	"money":   {"money", "afford", "cost", "expensive", "financial", "save", "pay"},
}

// factScore is 1 plus 2 for every category shared by message and fact.
func factScore(messageLower, fact string) int {
	factLower := strings.ToLower(fact)
	score := 1
	for _, words := range factCategories {
		if containsAny(messageLower, words) && containsAny(factLower, words) {
			score += 2
		}
	}
	return score
}

// triggerHit reports whether any of the first three words (longer than three letters)
// of a trigger phrase appear in the message.
func triggerHit(messageLower string, triggers []string) bool {
	for _, trig := range triggers {
		words := strings.Fields(strings.ToLower(trig))
		if len(words) > 3 {
			words = words[:3]
		}
		for _, w := range words {
			if len(w) > 3 && strings.Contains(messageLower, w) {
				return true
			}
		}
	}
	return false
}
