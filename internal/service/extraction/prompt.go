package extraction

import (
	"strings"

	"repairscribe/internal/models"
)

const systemPrompt = "You are an expert automotive service writer. You read transcripts of " +
	"technicians and customers talking about vehicle repairs and extract structured data. " +
	"Respond with a single flat JSON object and nothing else."

func buildPrompt(transcript string, typ models.ExtractionType, fields []string, custom *models.CustomSchema) string {
	var b strings.Builder
	b.WriteString("Extract information from the following automotive repair transcript.\n\n")
	b.WriteString("Transcript:\n\"\"\"\n")
	b.WriteString(transcript)
	b.WriteString("\n\"\"\"\n\n")

	if typ == models.ExtractionCustom && custom != nil {
		b.WriteString("Extraction goal: ")
		b.WriteString(strings.TrimSpace(custom.Description))
		b.WriteString("\n\n")
	} else if focus := typeInfo[typ].focus; focus != "" {
		b.WriteString(focus)
		b.WriteString("\n\n")
	}

	b.WriteString("Return a JSON object with exactly these keys:\n")
	for _, f := range fields {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Use an empty string \"\" for any field that is not mentioned in the transcript.\n")
	b.WriteString("- Do not invent values that are not supported by the transcript.\n")
	b.WriteString("- Add a numeric \"confidence\" key between 0 and 1 describing how confident you are in the extraction.\n")
	b.WriteString("- Respond with the JSON object only.\n")
	return b.String()
}
