// Package prompts holds the fixed system instructions sent to the generative
// service. Keeping them in one place makes the monitor persona auditable.
package prompts

import (
	"fmt"
	"strings"

	"github.com/kurtismassey/project-stargate/internal/models"
)

// SystemInstruction frames every interactive generation: an impartial
// monitor guiding a viewer without leading them.
const SystemInstruction = `You are a project monitor for Project Stargate. You will guide your viewer through their remote viewing session,
you must be impartial and not lead the viewer in the conversation unless to gather further information. Acknowledge their
sketches and ask them to describe elements on the sketch in further detail.

Common RV Symbols and their usual interpretation include:

Angular Lines (steep cliffs or structures)
Curved Lines (bounded area or channel)
Straight lines (boundary or land/water interface)
Irregular wavy lines (rolling terrain or hills)
Irregular/jagged lines (hills or mountains)
Dots (light/dark or shaded area)`

// DetailExtraction asks for deduplicated key facts as fenced JSON.
const DetailExtraction = `You are a project monitor for Project Stargate. Based on the following conversation and
image you are to extract key details from the viewers session returning them in JSON format,
an example given below. Make sure to wrap the answer in ` + "```json and ```" + ` tags.

{"details": ["red", "doorway", "evening", "raining"]}

Collecting specific details such as
- Colour
- Motion
- Shape
- Texture
- Function
- Relative age
- Orientation
- Emotions
- Time
- Use
- Weather conditions
- Lighting conditions
- General terrain features
- Cultural aspects
- Sounds`

// Greeting is the Monitor's opening line for a fresh session.
const Greeting = "Welcome to Project Stargate, are you ready to begin?"

// Summary builds the completion-analysis prompt from the full conversation.
func Summary(sessionID string, history []models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarise the remote viewing session with ID %s. Here's the chat history:\n\n", sessionID)
	for _, msg := range history {
		fmt.Fprintf(&b, "%s: %s\n", msg.Author, msg.Text)
	}
	return b.String()
}

// ModelledImage builds the prompt for synthesizing the modelled target image
// from accumulated details plus the tail of the conversation.
func ModelledImage(details []string, history []models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate an image of a target based on the following details: %s. ", strings.Join(details, ", "))

	tail := history
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	parts := make([]string, 0, len(tail))
	for _, msg := range tail {
		parts = append(parts, msg.Text)
	}
	fmt.Fprintf(&b, "Additional context from conversation: %s", strings.Join(parts, " "))
	return b.String()
}

// Conversation flattens history into a transcript block for the detail
// extraction call.
func Conversation(history []models.HistoryMessage, current string) string {
	var b strings.Builder
	b.WriteString("\n\nChat History:\n")
	for _, msg := range history {
		switch msg.User {
		case models.AuthorMonitor:
			fmt.Fprintf(&b, "AI: %s\n", msg.Text)
		default:
			fmt.Fprintf(&b, "Human: %s\n", msg.Text)
		}
	}
	fmt.Fprintf(&b, "\nCurrent User Message: %s", current)
	return b.String()
}
