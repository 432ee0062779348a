package prompts

import "fmt"

// Prompt construction is literal string interpolation: user text and
// serialized NLU output are embedded unescaped. Injection of adversarial text
// into a prompt is an accepted, documented property of these templates.

// Reply builds the free-form reply prompt from the user's words and the
// serialized understanding result.
func Reply(userText, understandingJSON string) string {
	return fmt.Sprintf(`User said: %s

NLU Understanding:
%s

Respond clearly and helpfully.`, userText, understandingJSON)
}

// Triage builds the classification prompt for a composite ticket text and its
// document sentiment label. The model must answer with bare JSON.
func Triage(ticketText, sentiment string) string {
	return fmt.Sprintf(`You are a customer support triage AI.

Ticket:
%s

Sentiment: %s

Tasks:
1. issue_type (billing, technical, complaint, account, general)
2. urgency_level (1-5)
3. route_to (L1, L2, billing_team, tech_team, manager)
4. short reply

Return ONLY JSON:
{
  "issue_type": "",
  "urgency_level": 3,
  "route_to": "",
  "reply": ""
}`, ticketText, sentiment)
}
