package draft

import "fmt"

const (
	fieldsSystemRole   = "This is a contract field provision system."
	templateSystemRole = "You are a contract creation assistant."
	extractSystemRole  = "You are a contract field extraction assistant."
	analyzeSystemRole  = "You are a contract analysis expert."
)

func fieldsPrompt(t, language string) string {
	return fmt.Sprintf("'%s' Provide the input items required to create a contract in a list format. "+
		"Please respond in '%s'.", t, language)
}

func templatePrompt(subject, language string) string {
	return fmt.Sprintf("Please fill out a standard contract of '%s' in %s. "+
		"Organize it in a way that makes it look nice and present it to you. "+
		"Write every piece of information you do not know as a placeholder in square brackets, "+
		"for example [Lessor full name]. "+
		"Please respond in %s.", subject, language, language)
}

func extractPrompt(input, language string) string {
	return fmt.Sprintf(`Please return the items that should be included in the contract in the following sentence in JSON format.
Output must be in valid JSON format. Do not include additional text other than JSON.

The user input is as follows:
"%s"

Please extract the necessary contract fields from the input and return them in JSON format.
The response must be a valid JSON object without additional text.

Example output:
{
    "Seller name": "Hong Gildong",
    "Buyer name": "Sim Cheongi"
}

Please respond in %s.`, input, language)
}

func analyzePrompt(transcript string) string {
	return fmt.Sprintf(`There may be one or two people in a conversation.
If it is two people, understand their relationship well in the conversation.
Analyze the following conversation to determine the type of contract and information required.

Conversation:
%s

Result format:
{
    "contract_type": "Contract type",
    "required_fields": ["Required field1", "Required field2"],
    "user_information": ["User entry1", "User entry2"]
}`, transcript)
}
