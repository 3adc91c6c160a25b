package extractor

import "strings"

const systemPrompt = `You are an expert in analysing Bill of Lading and Waybill documents.
Extract the shipment details from the document text supplied by the user.
Answer with JSON only, without commentary.
When a text field cannot be filled from the document, use the string "Unknown" for it.
Numeric fields such as quantity must always be JSON numbers; use 0 when the document does not state them.`

// BuildSystemPrompt combines the fixed instructions with the schema's format instructions.
func BuildSystemPrompt(formatInstructions string) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(formatInstructions)
	return sb.String()
}

// BuildUserPrompt wraps the document text.
func BuildUserPrompt(documentText string) string {
	return "File content:\n" + documentText
}
