package llm

// BuildMessages assembles the prompt for one exchange: the history turns
// first, then the room's system and assistant sentences, then the user
// prompt last.
func BuildMessages(prompt, systemSentence, assistantSentence string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+3)
	messages = append(messages, history...)
	if systemSentence != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemSentence})
	}
	if assistantSentence != "" {
		messages = append(messages, Message{Role: RoleAssistant, Content: assistantSentence})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})
	return messages
}

// convertForGemini splits OpenAI-style messages into a system instruction
// and Gemini contents. The last system turn wins; every other system turn is
// dropped, and assistant turns map to the "model" role.
func convertForGemini(messages []Message) (systemInstruction string, contents []Message) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleSystem {
			systemInstruction = messages[i].Content
			break
		}
	}
	contents = make([]Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			contents = append(contents, m)
		case RoleAssistant:
			contents = append(contents, Message{Role: "model", Content: m.Content})
		}
	}
	return systemInstruction, contents
}
