package generate

import (
	"encoding/json"
	"fmt"
)

const testCasePrompt = `Role: You are a Senior QA Automation Engineer.
Task: Generate comprehensive test cases based ONLY on the provided context.

Context:
%s
User Request: %s

Constraints:
1. Only generate test cases based on the provided docs. Do not invent features that are not mentioned.
2. Output must be a valid JSON array of objects.
3. Each object must have the following keys:
   - Test_ID: string (e.g., TC001)
   - Feature: string
   - Test_Scenario: string
   - Expected_Result: string
   - Grounded_In: string (source document filename)

Response Format:
` + "```json" + `
[
  {
    "Test_ID": "TC001",
    "Feature": "...",
    "Test_Scenario": "...",
    "Expected_Result": "...",
    "Grounded_In": "..."
  }
]
` + "```" + `
`

const seleniumPrompt = `Role: You are a Senior Selenium Automation Expert.
Task: Generate a Python Selenium script for the following test case, using the provided HTML to identify elements.

Test Case:
%s

Target HTML:
%s

Requirements:
1. Use the selenium library.
2. Assume driver is already initialized, but provide a setup block commented out.
3. Select elements using ID, class or XPath based on the provided HTML.
4. Include assertions to verify the expected result.
5. Output ONLY raw Python code. No markdown formatting.

Code:
`

// TestCasePrompt builds the QA prompt from retrieved context and the user's
// request.
func TestCasePrompt(retrieved, query string) string {
	return fmt.Sprintf(testCasePrompt, retrieved, query)
}

// SeleniumPrompt builds the script prompt for tc against the page html.
func SeleniumPrompt(tc TestCase, html string) (string, error) {
	data, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding test case: %w", err)
	}
	return fmt.Sprintf(seleniumPrompt, data, html), nil
}
