package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarinGuptha/FlowBit-Harin/internal/action"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
)

func testEmailAgent(t *testing.T) *EmailAgent {
	t.Helper()
	lex, err := DefaultToneLexicon()
	require.NoError(t, err)
	return NewEmailAgent(lex, []string{"CUST_", "ORD-", "TICKET-", "REF-"})
}

func emailCls() classify.Result {
	return classify.Result{FormatType: classify.FormatEmail, BusinessIntent: classify.IntentComplaint, Confidence: 0.7}
}

func TestEmailAgentPoliteLogsAndCloses(t *testing.T) {
	a := testEmailAgent(t)
	content := []byte("From: a@b.com\nSubject: Hi\n\nThanks for your help!")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)

	an := d.Analysis.(*EmailAnalysis)
	assert.True(t, an.HeadersParsed)
	assert.Equal(t, "a@b.com", an.Headers["From"])
	assert.Equal(t, "polite", an.Tone)
	assert.Greater(t, an.Sentiment, 0.0)

	require.Len(t, d.ProposedActions, 1)
	assert.Equal(t, action.TypeLogAndClose, d.ProposedActions[0].Type)
}

func TestEmailAgentExternalActionThreatEscalatesCritical(t *testing.T) {
	a := testEmailAgent(t)
	content := []byte("From: x@y.com\nSubject: Final warning\n\n" +
		"This is absolutely unacceptable. I am furious and my attorney " +
		"will file a lawsuit if this is not fixed.")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)

	an := d.Analysis.(*EmailAnalysis)
	assert.True(t, an.ExternalAction)
	require.Len(t, d.ProposedActions, 1)
	assert.Equal(t, action.TypeEscalate, d.ProposedActions[0].Type)
	assert.Equal(t, action.PriorityCritical, d.ProposedActions[0].Priority)
}

func TestEmailAgentUrgentAngryEscalatesHigh(t *testing.T) {
	a := testEmailAgent(t)
	content := []byte("From: x@y.com\nSubject: Down\n\n" +
		"The system is down and this outage is urgent. This is terrible.")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)

	require.Len(t, d.ProposedActions, 1)
	assert.Equal(t, action.TypeEscalate, d.ProposedActions[0].Type)
	assert.Equal(t, action.PriorityHigh, d.ProposedActions[0].Priority)
}

func TestEmailAgentMildAngryWithoutTriggerLogsAndCloses(t *testing.T) {
	a := testEmailAgent(t)
	// Angry wins the tone score but mixed polarity keeps sentiment above
	// the escalation floor and there is no urgency or threat.
	content := []byte("From: x@y.com\nSubject: Feedback\n\n" +
		"I am frustrated and a bit frustrated again, but thanks for looking into it.")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)

	an := d.Analysis.(*EmailAnalysis)
	assert.Equal(t, "angry", an.Tone)
	assert.Greater(t, an.Sentiment, -0.5)
	require.Len(t, d.ProposedActions, 1)
	assert.Equal(t, action.TypeLogAndClose, d.ProposedActions[0].Type)
	assert.Equal(t, action.PriorityMedium, d.ProposedActions[0].Priority)
}

func TestEmailAgentMalformedFallsBackToBody(t *testing.T) {
	a := testEmailAgent(t)
	content := []byte("no headers here at all, just text with please and thank you")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)

	an := d.Analysis.(*EmailAnalysis)
	assert.False(t, an.HeadersParsed)
	assert.Empty(t, an.Headers)
	assert.Equal(t, "polite", an.Tone)
}

func TestEmailAgentEntityExtraction(t *testing.T) {
	a := testEmailAgent(t)
	content := []byte("From: c@d.com\nSubject: Order\n\n" +
		"Customer CUST_8842 placed order ORD-1234 on 2026-01-15. " +
		"Contact jane.doe@example.com or +1 (555) 123-4567 about the $1,299.99 charge.")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)

	e := d.Analysis.(*EmailAnalysis).Entities
	assert.Contains(t, e.Identifiers, "CUST_8842")
	assert.Contains(t, e.Identifiers, "ORD-1234")
	assert.Contains(t, e.Addresses, "jane.doe@example.com")
	assert.Contains(t, e.Amounts, "$1,299.99")
	assert.Contains(t, e.Dates, "2026-01-15")
	assert.NotEmpty(t, e.Phones)
}

func TestEmailAgentThreateningOutranksAngryOnTie(t *testing.T) {
	a := testEmailAgent(t)
	// "hate" (angry, 1.0) against "court" (threatening, 1.0): the tie
	// resolves to the more severe category.
	content := []byte("From: x@y.com\nSubject: .\n\nI hate this and will see you in court.")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)
	assert.Equal(t, "threatening", d.Analysis.(*EmailAnalysis).Tone)
}

func TestEmailAgentIssueCategory(t *testing.T) {
	a := testEmailAgent(t)
	content := []byte("From: x@y.com\nSubject: Billing\n\n" +
		"I was overcharged on my last invoice and need a refund.")

	d, err := a.Analyze(context.Background(), "s1", content, emailCls())
	require.NoError(t, err)
	assert.Equal(t, "billing", d.Analysis.(*EmailAnalysis).IssueCategory)
}
