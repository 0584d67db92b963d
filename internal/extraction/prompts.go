package extraction

import "github.com/tmc/langchaingo/prompts"

const requestFormat = `Respond with a single JSON object and nothing else:
{
  "title": string,            // a short title for the procurement request
  "budget": number,           // total budget found in text, 0 if not found
  "currency": string,         // ISO 4217 code, "USD" if not stated
  "deadline": string | null,  // ISO date (YYYY-MM-DD); resolve relative phrases like "in 30 days" against today's date
  "items": [
    {"item_name": string, "quantity": integer, "specs": string}
  ]
}`

const responseFormat = `Respond with a single JSON object and nothing else:
{
  "price": number,     // total price quoted
  "timeline": string,  // delivery timeline mentioned
  "warranty": string,  // warranty terms mentioned
  "summary": string    // a 2 sentence summary of the proposal key points
}`

var (
	requestPrompt = prompts.NewPromptTemplate(`Extract structured RFP data from the following text.
Today's date is {{.today}}.
{{.format}}

Text: {{.text}}`, []string{"today", "format", "text"})

	responsePrompt = prompts.NewPromptTemplate(`Analyze this vendor email response and extract key commercial terms.
{{.format}}

Email: {{.email}}`, []string{"format", "email"})

	rankPrompt = prompts.NewPromptTemplate(`You are a procurement expert.
RFP Requirement: {{.context}}

Vendor Proposals:
{{.proposals}}

Rank these vendors from best to worst. Provide a score (0-100) and a reasoning for each.
Return exactly one entry per vendor_id above, as a valid JSON array and nothing else:
[{"vendor_id": "...", "score": 90, "reason": "..."}]`, []string{"context", "proposals"})

	correctionPrompt = prompts.NewPromptTemplate(`{{.prompt}}

Your previous reply could not be used: {{.problem}}
Reply again with only the JSON described above, no prose and no code fences.`, []string{"prompt", "problem"})
)
