package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/aegis-router/internal/config"
)

func basicRules() *config.IntentRules {
	return &config.IntentRules{
		DefaultIntent: "general",
		Intents: config.IntentList{
			{Name: "code", Keywords: []string{"fix", "bug"}, Models: []string{"code"}, Description: "Code changes"},
			{Name: "general", Keywords: []string{}, Models: []string{"default"}, Description: "Anything else"},
		},
	}
}

func loaded(t *testing.T, rules *config.IntentRules) *Classifier {
	t.Helper()
	c := New()
	require.NoError(t, c.Load(rules))
	return c
}

func TestClassify_NotLoaded(t *testing.T) {
	c := New()
	_, err := c.Classify("fix this bug")
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = c.ForIntent("code")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, c.Loaded())
}

func TestClassify_FullMatch(t *testing.T) {
	c := loaded(t, basicRules())

	res, err := c.Classify("fix this bug")
	require.NoError(t, err)
	assert.Equal(t, "code", res.Intent)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, []string{"code"}, res.CandidateModels)
	assert.Equal(t, "Code changes", res.Description)
}

func TestClassify_FallsBackToDefault(t *testing.T) {
	c := loaded(t, basicRules())

	res, err := c.Classify("hello there")
	require.NoError(t, err)
	assert.Equal(t, "general", res.Intent)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, []string{"default"}, res.CandidateModels)
	assert.Equal(t, "Anything else", res.Description)
}

func TestClassify_EmptyInput(t *testing.T) {
	c := loaded(t, basicRules())

	res, err := c.Classify("")
	require.NoError(t, err)
	assert.Equal(t, "general", res.Intent)
	assert.Equal(t, []string{"default"}, res.CandidateModels)
}

func TestClassify_CaseInsensitiveSubstring(t *testing.T) {
	c := loaded(t, basicRules())

	res, err := c.Classify("Please FIX the debugger")
	require.NoError(t, err)
	// "fix" and "bug" (inside "debugger") both match
	assert.Equal(t, "code", res.Intent)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestClassify_BelowThresholdUsesDefaultModels(t *testing.T) {
	rules := &config.IntentRules{
		DefaultIntent: "general",
		Intents: config.IntentList{
			{Name: "docs", Keywords: []string{"document", "readme", "explain", "comment"}, Models: []string{"writer"}},
			{Name: "general", Models: []string{"default"}},
		},
	}
	c := loaded(t, rules)

	// 1/4 = 0.25 < 0.3
	res, err := c.Classify("explain this")
	require.NoError(t, err)
	assert.Equal(t, "general", res.Intent)
	assert.InDelta(t, 0.25, res.Confidence, 1e-9)
	assert.Equal(t, []string{"default"}, res.CandidateModels)
}

func TestClassify_TieKeepsEarlierIntent(t *testing.T) {
	rules := &config.IntentRules{
		DefaultIntent: "general",
		Intents: config.IntentList{
			{Name: "first", Keywords: []string{"deploy"}, Models: []string{"a"}},
			{Name: "second", Keywords: []string{"deploy"}, Models: []string{"b"}},
			{Name: "general", Models: []string{"default"}},
		},
	}
	c := loaded(t, rules)

	for i := 0; i < 10; i++ {
		res, err := c.Classify("deploy it")
		require.NoError(t, err)
		assert.Equal(t, "first", res.Intent)
	}
}

func TestClassify_HigherScoreWins(t *testing.T) {
	rules := &config.IntentRules{
		DefaultIntent: "general",
		Intents: config.IntentList{
			{Name: "debugging", Keywords: []string{"debug", "exception", "trace"}, Models: []string{"analysis", "code"}},
			{Name: "code", Keywords: []string{"debug", "write"}, Models: []string{"code"}},
			{Name: "general", Models: []string{"default"}},
		},
	}
	c := loaded(t, rules)

	res, err := c.Classify("debug this null pointer exception")
	require.NoError(t, err)
	assert.Equal(t, "debugging", res.Intent)
	assert.InDelta(t, 2.0/3.0, res.Confidence, 1e-9)
	assert.Equal(t, []string{"analysis", "code"}, res.CandidateModels)
}

func TestClassify_ResultIsACopy(t *testing.T) {
	c := loaded(t, basicRules())

	res, err := c.Classify("fix bug")
	require.NoError(t, err)
	res.CandidateModels[0] = "mutated"

	res, err = c.Classify("fix bug")
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, res.CandidateModels)
}

func TestForIntent(t *testing.T) {
	c := loaded(t, basicRules())

	res, err := c.ForIntent("code")
	require.NoError(t, err)
	assert.Equal(t, "code", res.Intent)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, []string{"code"}, res.CandidateModels)

	res, err = c.ForIntent("unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Intent)
	assert.Empty(t, res.CandidateModels)
}

func TestLoad_RejectsMissingDefault(t *testing.T) {
	c := New()
	err := c.Load(&config.IntentRules{DefaultIntent: "nope"})
	assert.Error(t, err)
	assert.False(t, c.Loaded())
}

func TestLoad_Replaces(t *testing.T) {
	c := loaded(t, basicRules())
	assert.Equal(t, []string{"code", "general"}, c.Intents())

	require.NoError(t, c.Load(&config.IntentRules{
		DefaultIntent: "chat",
		Intents:       config.IntentList{{Name: "chat", Models: []string{"small"}}},
	}))
	res, err := c.Classify("fix this bug")
	require.NoError(t, err)
	assert.Equal(t, "chat", res.Intent)
}
