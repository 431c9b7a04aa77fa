package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidDocument indicates the rule document could not be decoded
	// or has the wrong shape.
	ErrInvalidDocument = errors.New("invalid rule document")
	// ErrNoRules indicates the document declares neither rules nor
	// blurhashes.
	ErrNoRules = errors.New("rule document has no rules")
	// ErrInvalidRule indicates a rule that could never be evaluated
	// meaningfully.
	ErrInvalidRule = errors.New("invalid rule")
)

// document is the YAML layout of a rule source. blurhashes is the short
// form of a list of image_fingerprint rules.
type document struct {
	Rules      *[]Rule   `yaml:"rules"`
	Blurhashes *[]string `yaml:"blurhashes"`
}

// Parse decodes a rule document. Fingerprints listed under blurhashes come
// first, followed by the rules in declared order. Unknown keys are
// rejected so that a misspelled condition cannot silently widen a rule.
func Parse(data []byte) ([]Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if doc.Rules == nil && doc.Blurhashes == nil {
		return nil, ErrNoRules
	}

	var rules []Rule
	if doc.Blurhashes != nil {
		for i, hash := range *doc.Blurhashes {
			if hash == "" {
				return nil, fmt.Errorf("%w: blurhash %d is empty", ErrInvalidRule, i)
			}
			rules = append(rules, Rule{ImageFingerprint: &hash})
		}
	}

	if doc.Rules != nil {
		for i, rule := range *doc.Rules {
			if err := validate(rule); err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			rules = append(rules, rule)
		}
	}

	return rules, nil
}

func validate(rule Rule) error {
	if rule.MinMentions == nil && rule.ImageFingerprint == nil && rule.ContentContains == nil {
		return fmt.Errorf("%w: no conditions", ErrInvalidRule)
	}
	if rule.ImageFingerprint != nil && *rule.ImageFingerprint == "" {
		return fmt.Errorf("%w: empty image_fingerprint", ErrInvalidRule)
	}
	if rule.ContentContains != nil && *rule.ContentContains == "" {
		return fmt.Errorf("%w: empty content_contains", ErrInvalidRule)
	}
	return nil
}
