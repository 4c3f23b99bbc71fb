package classify

import (
	"fmt"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

const (
	classifySystemRole = "You are a contract classification system."
	suggestSystemRole  = "You are a contract recommendation system."
)

func classifyPrompt(input, language string, catalog contract.Catalog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user entered the following message: '%s'\n", input)
	b.WriteString("Identify the single contract type that best fits the message.\n")
	if len(catalog) > 0 {
		b.WriteString("Prefer one of these known types when it applies:\n")
		for _, e := range catalog {
			fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
		}
	}
	b.WriteString("Respond with exactly one contract type name and nothing else. ")
	b.WriteString("If no contract applies, respond with 'none'.\n")
	fmt.Fprintf(&b, "Please respond in '%s'.", language)
	return b.String()
}

func suggestPrompt(input, language string) string {
	return fmt.Sprintf(`The user entered the following message: '%s'
Please analyze the message and return a list of the most relevant contract types.
The response should be formatted as a JSON array with contract types.
Please respond in '%s'.

Example output:
["Real Estate Sale Contract", "Vehicle Sale Contract", "Goods Sale Contract"]

Please respond in JSON format.`, input, language)
}
