package prompt

import (
	"fmt"
)

const systemPrompt = `You are an expert data analyst specializing in CSV data analysis.

When analyzing data, follow this iterative process:

## PHASE 1: DATA EXPLORATION
1. Read the CSV file to understand its structure
2. Check the shape (rows, columns)
3. Examine column names and data types
4. Identify any missing or null values
5. Look at sample rows to understand the data

## PHASE 2: ANALYSIS
Based on the user's specific question:
1. Write Python code using pandas to analyze the data
2. Execute the code and observe the results
3. If the results are incomplete or raise new questions, run additional analysis
4. Continue iterating until you have comprehensive insights

## PHASE 3: SYNTHESIS
1. Compile your findings into clear, actionable insights
2. Answer the user's question directly with supporting data
3. Include relevant statistics and patterns discovered
4. Write your final analysis to the output file

## GUIDELINES
- Always use Python with pandas for data manipulation
- Show your work by printing intermediate results
- If you encounter errors, debug and retry
- Be thorough but focused on the user's question
- Support all conclusions with actual data from the CSV
- Save your final analysis report as plain text
`

const analysisTemplate = `
Analyze the CSV file located at: %[1]s

User's Question/Request:
%[2]s

Instructions:
1. Start by reading and exploring the CSV file structure using Python with pandas
2. Use the Bash tool to run Python code for analysis
3. Iterate as needed to fully answer the question
4. Save your final analysis and conclusions to: %[3]s

Important: Use Python code execution via Bash to perform all data analysis.
Example: python3 -c "import pandas as pd; df = pd.read_csv('%[1]s'); print(df.head())"

Begin your analysis now.
`

const streamingTemplate = `
Analyze the CSV file located at: %[1]s

User's Question/Request:
%[2]s

Save your final analysis to: %[3]s

Use Python with pandas for all data analysis operations.
`

// GetSystemPrompt guides the agent through explore, analyze and synthesize.
func GetSystemPrompt() string {
	return systemPrompt
}

// AnalysisPrompt builds the full instruction for one CSV.
// Paths must already be absolute; they are embedded as-is.
func AnalysisPrompt(csvPath, userPrompt, outputPath string) string {
	return fmt.Sprintf(analysisTemplate, csvPath, userPrompt, outputPath)
}

// StreamingPrompt is the shorter variant used when progress is streamed to a callback.
func StreamingPrompt(csvPath, userPrompt, outputPath string) string {
	return fmt.Sprintf(streamingTemplate, csvPath, userPrompt, outputPath)
}
