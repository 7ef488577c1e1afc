// Package prompt builds the text sent to the generation backend for each
// chat mode.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kalambet/parley/internal/chat"
)

// ProjectPersona opens every project-mode prompt.
const ProjectPersona = "Act as a project planning expert."

const generalTemplate = `Provide response in plain text format without markdown.
Keep paragraphs short and use line breaks for readability.
Question: %s`

const projectTemplate = ProjectPersona + ` Help me break down this project request:
%s
Provide detailed implementation steps and alternative approaches in plain text format.`

// Compose returns the prompt for input under mode. Only the latest user
// message is used; earlier history is not forwarded.
func Compose(mode chat.Mode, input string) string {
	input = strings.TrimSpace(input)
	switch mode {
	case chat.ModeProject:
		return fmt.Sprintf(projectTemplate, input)
	default:
		return fmt.Sprintf(generalTemplate, input)
	}
}
