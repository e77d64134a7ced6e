// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"agentic/orchestrator/llm"
)

// taskPrompt is the question followed by any review context. Without context
// it is the question unchanged.
func taskPrompt(question string, rc ReviewContext) string {
	if rc.IsEmpty() {
		return question
	}

	var sb strings.Builder
	sb.WriteString(question)

	if len(rc.Constraints) > 0 {
		sb.WriteString("\n\nConstraints:\n")
		for _, c := range rc.Constraints {
			sb.WriteString("- " + c + "\n")
		}
	}

	if len(rc.Files) > 0 {
		paths := make([]string, 0, len(rc.Files))
		for p := range rc.Files {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		sb.WriteString("\n\nFiles:\n")
		for _, p := range paths {
			sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n", p, rc.Files[p]))
		}
	}

	if rc.DiffText != "" {
		sb.WriteString("\n\nDiff:\n")
		sb.WriteString(rc.DiffText)
		sb.WriteString("\n")
	}

	if len(rc.TestCommands) > 0 {
		sb.WriteString("\n\nTest commands:\n")
		for _, c := range rc.TestCommands {
			sb.WriteString("- " + c + "\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// memberMessages frames one council member: an optional system turn followed
// by the task as a user turn.
func memberMessages(m CouncilMember, prompt string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, 2)
	if m.SystemPrompt != "" {
		messages = append(messages, llm.SystemMessage(m.SystemPrompt))
	}
	return append(messages, llm.UserMessage(prompt))
}

// chairPrompt lists member outputs in the order given, which callers keep
// sorted by role id.
func chairPrompt(question string, members []AgentMessage) string {
	lines := []string{
		"You are the chair of an expert council.",
		"Summarize consensus, disagreements, and give a final recommendation.\n",
		fmt.Sprintf("Question:\n%s\n", question),
		"Expert inputs:\n",
	}
	for _, m := range members {
		lines = append(lines, fmt.Sprintf("%s:\n%s\n", m.RoleID, m.Content))
	}
	return strings.Join(lines, "\n")
}

func researchPrompt(prompt string) string {
	return "Research:\n" + prompt
}

func critiquePrompt(research string) string {
	return "Critique this research:\n" + research
}

func synthesisPrompt(prompt, research, critique string) string {
	return fmt.Sprintf("Question:\n%s\n\nResearch:\n%s\n\nCritique:\n%s\n\nProduce a final decision with caveats.",
		prompt, research, critique)
}

// aggregatePrompt numbers answers from 1 without naming the model or role
// that produced them.
func aggregatePrompt(answers []AgentMessage) string {
	var sb strings.Builder
	sb.WriteString("Aggregate the following anonymous answers:\n\n")
	for i, a := range answers {
		sb.WriteString(fmt.Sprintf("Answer %d:\n%s\n\n", i+1, a.Content))
	}
	return sb.String()
}
