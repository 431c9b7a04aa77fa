// Package rules evaluates posts against an ordered list of spam rules.
//
// A rule is a set of conditions that must all hold for the rule to match:
//
//   - min_mentions: the post mentions at least this many accounts
//   - image_fingerprint: the post carries this blurhash on an attachment
//     or on its preview card
//   - content_contains: the post body or a preview card text field
//     contains this literal, case-sensitive substring
//
// Rules are evaluated in order and the first positive match wins. A rule
// whose mention threshold is not reached stops the whole evaluation.
package rules

import (
	"time"

	"github.com/abdulachik/spamsweep/internal/toot"
)

// Reason explains the outcome of an evaluation.
type Reason int

const (
	ReasonNoHit Reason = iota
	ReasonMinMentionsNotReached
	ReasonImageFingerprint
	ReasonContentContains
	ReasonCardContentContains
)

// String returns the reason's canonical name.
func (r Reason) String() string {
	switch r {
	case ReasonNoHit:
		return "NO_HIT"
	case ReasonMinMentionsNotReached:
		return "MIN_MENTIONS_NOT_REACHED"
	case ReasonImageFingerprint:
		return "IMAGE_FINGERPRINT"
	case ReasonContentContains:
		return "CONTENT_CONTAINS"
	case ReasonCardContentContains:
		return "CARD_CONTENT_CONTAINS"
	default:
		return "UNKNOWN"
	}
}

// Rule is one spam rule. A nil field is an undeclared condition.
type Rule struct {
	MinMentions      *int    `yaml:"min_mentions,omitempty"`
	ImageFingerprint *string `yaml:"image_fingerprint,omitempty"`
	ContentContains  *string `yaml:"content_contains,omitempty"`
}

// Set is the active rule list together with the token used to detect
// whether its source changed.
type Set struct {
	Rules    []Rule
	ETag     string
	Source   string
	LoadedAt time.Time
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Evaluate runs the set's rules against a post.
func (s *Set) Evaluate(post *toot.Post) (bool, Reason) {
	if s == nil {
		return false, ReasonNoHit
	}
	return Evaluate(post, s.Rules)
}

// Evaluate checks post against rules in order.
//
// A rule that declares min_mentions and is not satisfied ends the
// evaluation with ReasonMinMentionsNotReached; later rules are not
// consulted. Otherwise the first rule whose fingerprint or content
// condition holds determines the result.
func Evaluate(post *toot.Post, rules []Rule) (bool, Reason) {
	for _, rule := range rules {
		if rule.MinMentions != nil && !post.HasMinMentions(*rule.MinMentions) {
			return false, ReasonMinMentionsNotReached
		}

		if rule.ImageFingerprint != nil && post.HasFingerprint(*rule.ImageFingerprint) {
			return true, ReasonImageFingerprint
		}

		if rule.ContentContains != nil {
			if post.ContentContains(*rule.ContentContains) {
				return true, ReasonContentContains
			}
			if post.CardContains(*rule.ContentContains) {
				return true, ReasonCardContentContains
			}
		}
	}

	return false, ReasonNoHit
}
