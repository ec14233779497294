package assist

const extractSystemPrompt = `You extract structured data from restaurant surplus-food messages.
Return ONLY a JSON object with exactly these keys:
{
  "food_items": [{"name": string, "quantity": number or null, "unit": string}],
  "pickup_deadline": string,
  "pickup_address": string,
  "notes": string,
  "missing_fields": [string]
}
Use an empty string or null for anything the message does not state and
list those keys in "missing_fields". Never invent quantities, times or
addresses. No commentary, no markdown.`

const rankSystemPrompt = `You match a food donation to receiving charities.
Rank EVERY candidate using this rubric, in priority order:
1. The charity accepts the donation's food type.
2. A larger service radius (max_radius_miles) is preferred.
3. The charity's hours are compatible with the pickup deadline.
Return ONLY a JSON object of the form
{"ranked": [{"id": "<candidate _id>", "name": string, "score": number between 0 and 1, "reason": string}]}
ordered best first. Use the candidates' exact _id values. No commentary.`

const draftSystemPrompt = `You write dispatch messages for volunteer drivers.
Write ONE short text message, at most 60 words, plain text, no emoji,
no greeting line and no preamble such as "Here is the message".
It MUST include the pickup address, the pickup deadline, the item summary
and the accept link exactly as given.`

const receiptSystemPrompt = `You write donation receipts for restaurants.
Return ONLY a JSON object with exactly these string keys:
receipt_id, donor_label, receiving_org, timestamp, item_summary,
pickup_address, pickup_deadline, disclaimer, receipt_text.
The disclaimer must state that the receipt is informational and not tax
advice. receipt_text is a short human-readable receipt. No commentary.`
