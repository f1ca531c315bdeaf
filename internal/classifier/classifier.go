// Package classifier maps free-text requests to a named intent and its
// ordered list of candidate models using keyword-overlap scoring.
package classifier

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/af-corp/aegis-router/internal/config"
	"github.com/af-corp/aegis-router/internal/types"
)

// MinConfidence is the score below which the default intent is used.
const MinConfidence = 0.3

var ErrNotLoaded = errors.New("classifier rules not loaded")

type rule struct {
	name        string
	keywords    []string // lower-cased
	models      []string
	description string
}

type ruleSet struct {
	defaultIntent string
	rules         []rule
	byName        map[string]int
}

// Classifier is safe for concurrent use. Rules can be swapped with Load at
// any time; in-flight calls keep the set they started with.
type Classifier struct {
	mu    sync.RWMutex
	rules *ruleSet
}

func New() *Classifier {
	return &Classifier{}
}

// Load validates and installs a rule set.
func (c *Classifier) Load(cfg *config.IntentRules) error {
	if cfg == nil {
		return fmt.Errorf("load classifier: nil rules")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}

	rs := &ruleSet{
		defaultIntent: cfg.DefaultIntent,
		rules:         make([]rule, 0, len(cfg.Intents)),
		byName:        make(map[string]int, len(cfg.Intents)),
	}
	for _, it := range cfg.Intents {
		kws := make([]string, 0, len(it.Keywords))
		for _, kw := range it.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		rs.byName[it.Name] = len(rs.rules)
		rs.rules = append(rs.rules, rule{
			name:        it.Name,
			keywords:    kws,
			models:      append([]string(nil), it.Models...),
			description: it.Description,
		})
	}

	c.mu.Lock()
	c.rules = rs
	c.mu.Unlock()
	return nil
}

// Loaded reports whether a rule set is installed.
func (c *Classifier) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules != nil
}

func (c *Classifier) current() (*ruleSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rules == nil {
		return nil, ErrNotLoaded
	}
	return c.rules, nil
}

// Classify scores every intent as the fraction of its keywords found in
// text (case-insensitive substring match). The strictly highest score wins;
// ties keep the earlier intent. Scores under MinConfidence resolve to the
// default intent.
func (c *Classifier) Classify(text string) (types.ClassificationResult, error) {
	rs, err := c.current()
	if err != nil {
		return types.ClassificationResult{}, err
	}

	lower := strings.ToLower(text)
	best := rs.byName[rs.defaultIntent]
	bestScore := 0.0

	for i, r := range rs.rules {
		if len(r.keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		score := float64(matches) / float64(len(r.keywords))
		if score > bestScore {
			best = i
			bestScore = score
		}
	}

	if bestScore < MinConfidence {
		best = rs.byName[rs.defaultIntent]
	}
	return rs.result(best, bestScore), nil
}

// ForIntent returns the candidates of a named intent with full confidence.
// An unknown intent yields an empty candidate list.
func (c *Classifier) ForIntent(name string) (types.ClassificationResult, error) {
	rs, err := c.current()
	if err != nil {
		return types.ClassificationResult{}, err
	}
	i, ok := rs.byName[name]
	if !ok {
		return types.ClassificationResult{Intent: name, Confidence: 1, CandidateModels: []string{}}, nil
	}
	return rs.result(i, 1), nil
}

// Intents lists the configured intent names in rule order.
func (c *Classifier) Intents() []string {
	rs, err := c.current()
	if err != nil {
		return nil
	}
	out := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.name
	}
	return out
}

func (rs *ruleSet) result(i int, confidence float64) types.ClassificationResult {
	r := rs.rules[i]
	models := append([]string{}, r.models...)
	return types.ClassificationResult{
		Intent:          r.name,
		Confidence:      confidence,
		CandidateModels: models,
		Description:     r.description,
	}
}
