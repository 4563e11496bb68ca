package ai

import (
	"fmt"
	"strings"

	"lurkbot/internal/domain"
)

// Prompt builders for the chain-of-thought compositions. Each composition
// prompt ends with the Analyze/Plan/Response format instruction the parser
// expects; the persona's style rules and avoid-words are injected verbatim.

func formatContext(msgs []domain.InboundMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "%s: %s\n", m.AuthorName, m.Content)
	}
	return sb.String()
}

func formatTech(chunks []domain.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Relevant information from our knowledge base:\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "%d. %s\nSource: %s\n\n", i+1, c.Chunk.Content, c.Chunk.SourceURL)
	}
	return sb.String()
}

func (p *Persona) styleRules() string {
	var sb strings.Builder
	for _, s := range p.Style {
		fmt.Fprintf(&sb, "- %s\n", s)
	}
	return sb.String()
}

func (p *Persona) avoidList() string {
	var sb strings.Builder
	sb.WriteString("Don't use these words:\n")
	for _, w := range p.AvoidWords {
		fmt.Fprintf(&sb, "- %s\n", w)
	}
	return sb.String()
}

func replyPrompt(p *Persona, original, reply string, convCtx []domain.InboundMessage, tech []domain.ScoredChunk) string {
	return fmt.Sprintf(`You are a %s participating in a %s conversation. Someone has replied to your message, and you need to respond naturally.

Original conversation context:
%s
Your original message: %s

The reply you received: %s

%s
Think through your response step by step:

1) Analyze: First, analyze the reply and understand what the user is asking or saying. Consider any questions, sentiment, or information they've shared. If there's relevant technical information in the context provided, consider how it applies.

2) Plan: Consider how you should respond. What information or perspective would be helpful? How can you keep the conversation engaging?

3) Respond: Write a natural, conversational response that addresses their message directly.

Style rules:
%s
%s
Format your answer as:
Analyze: [your analysis]
Plan: [your plan]
Response: [your final response]`,
		p.Name, p.Platform, formatContext(convCtx), original, reply, formatTech(tech), p.styleRules(), p.avoidList())
}

func responsePrompt(p *Persona, trigger string, convCtx []domain.InboundMessage, tech []domain.ScoredChunk) string {
	return fmt.Sprintf(`You are a %s participating in a %s conversation. Someone has sent a message, and you need to respond helpfully and naturally.

Recent conversation context:
%s
The message you need to respond to: %s

%s
Think through your response step by step:

1) Analyze: First, analyze the message and understand what the user is asking or saying. If there's relevant technical information in the context provided, consider how it applies.

2) Plan: Consider how you should respond. If you're using information from the knowledge base, plan how to integrate it naturally.

3) Respond: Write a natural, conversational response that addresses their message directly.

Style rules:
%s
%s
Format your answer as:
Analyze: [your analysis]
Plan: [your plan]
Response: [your final response]`,
		p.Name, p.Platform, formatContext(convCtx), trigger, formatTech(tech), p.styleRules(), p.avoidList())
}

func openerPrompt(p *Persona, convCtx []domain.InboundMessage) string {
	return fmt.Sprintf(`You are a %s participating in a %s conversation. You're looking to start or contribute to a conversation with a message that feels natural and engaging.

Recent conversation context:
%s
Think through your message step by step:

1) Analyze: First, analyze the recent conversation. What topics are being discussed? What's the tone and style of the conversation?

2) Plan: Consider what kind of message would fit naturally into this conversation. Should you ask a question, share an observation, or introduce a new but related topic?

3) Respond: Write a natural, conversational message that would fit well in this chat. Don't mention or tag anyone specifically.

Style rules:
%s
%s
Format your answer as:
Analyze: [your analysis]
Plan: [your plan]
Response: [your final message]`,
		p.Name, p.Platform, formatContext(convCtx), p.styleRules(), p.avoidList())
}

func proactivePrompt(p *Persona, convCtx []domain.InboundMessage) string {
	return fmt.Sprintf(`You are a %s analyzing a %s conversation between other users. Your goal is to decide if it's a good time to join the conversation and, if so, what to say.

Recent Conversation:
%s
Think step-by-step:

1. Analyze: Read the conversation. What is the topic? What is the mood? Is the conversation open-ended, or does it seem like a private or finished discussion?
2. Decide: Based on your analysis, should you join in? Only join if you have something relevant and non-intrusive to add. If it's a simple back-and-forth, a sensitive topic, or seems resolved, decide 'No'.
3. Plan (if joining): If you decide to join, plan a brief, casual message that adds to the conversation.
4. Respond: If your decision was 'Yes', write your message. If 'No', simply write "PASS".

Style rules:
%s
%s
Format your answer as:
Analyze: [your analysis]
Decide: [Yes or No]
Plan: [your plan if the decision is Yes]
Response: [your final message, or PASS]`,
		p.Name, p.Platform, formatContext(convCtx), p.styleRules(), p.avoidList())
}

func classifyPrompt(message string) string {
	return fmt.Sprintf(`Analyze the user's message and classify its primary intent. Choose only from the following categories:
- 'question' (if the user is asking for information, help, or clarification)
- 'social_reply' (for simple agreements, disagreements, jokes, thanks, or greetings like 'lol', 'gm', 'ty')
- 'statement' (if the user is just stating an opinion or fact without asking a question)

Message: "%s"

Classification:`, message)
}

func searchQueryPrompt(text string) string {
	return fmt.Sprintf(`Based on the user's message, what is the core topic or question?
Formulate a clean search query of 3-5 keywords that would be perfect for finding relevant documents in a technical knowledge base.
Focus on extracting the most important technical terms, concepts, and entities.

User Message: "%s"

Search Query:`, text)
}
