package llm

import (
	"fmt"
	"strings"
)

const systemPromptGeneral = `You are a helpful AI assistant that provides data-driven business insights and strategic recommendations.
Your responses should be concise, actionable, and aligned with the given context.
Prioritize retention strategies, proactive outreach, and customer engagement improvements based on available data.
When answering questions, ensure that responses stay relevant to the given context and avoid speculative or unrelated topics.`

const contextPromptGeneral = `Given the following context answer the user's question.
Context:
    %s
User Question:
    %s`

const systemPromptIntent = `You are an AI assistant specializing in intent classification. Your task is to analyze user input and determine the most appropriate intent category. The possible intent categories are:
1. General Question Answering - The user is asking for factual information or an explanation.
2. Graph Generation - The user wants to generate a visual representation of data (e.g., bar chart, pie chart, line graph).
3. Task Creation - The user wants to automate a task using function calling (e.g., scheduling follow-ups, setting alerts).

Your response must be a single number (1, 2, or 3), corresponding to the classified intent. If the intent is ambiguous or uncertain, always default to 1.`

const contextPromptIntent = `Input
    %s
Answer:`

const systemPromptPlot = `Act as a data scientist and Python programmer. Write code that will solve my problem.
I have a table with %d rows and %d columns.
The description of the table and columns is as follows: %s
The columns and their types are as follows:
%s`

const contextPromptPlot = `Solve the following problem:
Create a plot in Python with the matplotlib package that fulfills this request:
%s

While writing the code, please follow these guidelines:
1. Return exactly one fenced code block (` + "```python ... ```" + `) and no other text.
2. Do not import additional libraries. pd, np and plt are already available.
3. The table is stored in the variable df.
4. Save the figure with plt.savefig(output_path). Do not call plt.show().`

const systemPromptSelection = `You are a data analyst. You are given a list of CSV datasets, each with a description of its contents.
Choose the single dataset that is most relevant for answering the user's question.
Respond with the dataset file name only, exactly as listed, without any other text.`

const contextPromptSelection = `Datasets:
%s
User Question:
    %s
Dataset file name:`

const systemPromptIDA = `You are a text analysis assistant specialized in extracting structured information.
Analyze the provided text and extract the following components:
1. Insights: key observations, metrics, trends and issues described in the text.
2. Direction: recommended strategies or plans proposed to address the issues.
3. Action: specific actions or assignments given to team members or departments.
Output your findings under clearly labeled sections: 'Insights', 'Direction', and 'Action'.`

const contextPromptIDA = `Please analyze the following text and extract:
- **Insights:** data points, observations or trends mentioned.
- **Direction:** the recommendations or strategies that have been suggested.
- **Action:** any specific actions or assignments given.

Input Text:
%s

Provide your answer in three separate sections labeled 'Insights', 'Direction', and 'Action', using bullet points for each extracted item.`

// ColumnType is one column of a loaded table with its inferred dtype.
type ColumnType struct {
	Name string
	Type string
}

// DatasetShape seeds the plot prompt with the table dimensions.
type DatasetShape struct {
	Rows    int
	Columns []ColumnType
}

// Candidate is a dataset offered to SelectRelevant.
type Candidate struct {
	Name        string
	Description string
}

func renderGeneral(question, context string) (system, user string) {
	return systemPromptGeneral, fmt.Sprintf(contextPromptGeneral, context, question)
}

func renderIntent(question string) (system, user string) {
	return systemPromptIntent, fmt.Sprintf(contextPromptIntent, question)
}

func renderPlot(question string, shape DatasetShape, description string) (system, user string) {
	var cols strings.Builder
	for _, c := range shape.Columns {
		fmt.Fprintf(&cols, "%s (%s)\n", c.Name, c.Type)
	}
	system = fmt.Sprintf(systemPromptPlot, shape.Rows, len(shape.Columns), description, cols.String())
	return system, fmt.Sprintf(contextPromptPlot, question)
}

func renderSelection(candidates []Candidate, question string) (system, user string) {
	var list strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&list, "- %s: %s\n", c.Name, strings.TrimSpace(c.Description))
	}
	return systemPromptSelection, fmt.Sprintf(contextPromptSelection, list.String(), question)
}

func renderIDA(document string) (system, user string) {
	return systemPromptIDA, fmt.Sprintf(contextPromptIDA, document)
}
