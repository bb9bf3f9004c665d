package prompt

import (
	"fmt"
	"strings"
)

// Render produces the prompt string for msgs. When addGenerationPrompt is
// true the assistant header for the next turn is appended so the model
// continues from there.
func (t *Template) Render(msgs []Message, addGenerationPrompt bool) (string, error) {
	switch t.dialect {
	case dialectGemma:
		return renderGemma(msgs, addGenerationPrompt)
	case dialectMistral:
		return renderMistral(msgs, addGenerationPrompt)
	default:
		return renderChatML(msgs, addGenerationPrompt)
	}
}

func renderChatML(msgs []Message, addGenerationPrompt bool) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case "system", "user", "assistant", "tool":
			b.WriteString("<|im_start|>")
			b.WriteString(m.Role)
			b.WriteString("\n")
			b.WriteString(m.Content)
			b.WriteString("<|im_end|>\n")
		default:
			return "", fmt.Errorf("chatml: unsupported role %q", m.Role)
		}
	}
	if addGenerationPrompt {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String(), nil
}

func renderGemma(msgs []Message, addGenerationPrompt bool) (string, error) {
	var b strings.Builder
	b.WriteString("<bos>")
	for i, m := range msgs {
		role := m.Role
		content := m.Content
		switch role {
		case "system":
			// Gemma has no system turn; fold it into the first user turn.
			if i+1 < len(msgs) && msgs[i+1].Role == "user" {
				continue
			}
			role = "user"
		case "assistant":
			role = "model"
		case "user":
			if i > 0 && msgs[i-1].Role == "system" {
				content = msgs[i-1].Content + "\n\n" + content
			}
		default:
			return "", fmt.Errorf("gemma: unsupported role %q", role)
		}
		b.WriteString("<start_of_turn>")
		b.WriteString(role)
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("<end_of_turn>\n")
	}
	if addGenerationPrompt {
		b.WriteString("<start_of_turn>model\n")
	}
	return b.String(), nil
}

func renderMistral(msgs []Message, addGenerationPrompt bool) (string, error) {
	var b strings.Builder
	b.WriteString("<s>")
	var system string
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			b.WriteString("[INST] ")
			if system != "" {
				b.WriteString(system)
				b.WriteString("\n\n")
				system = ""
			}
			b.WriteString(m.Content)
			b.WriteString(" [/INST]")
		case "assistant":
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString("</s>")
		default:
			return "", fmt.Errorf("mistral: unsupported role %q", m.Role)
		}
	}
	_ = addGenerationPrompt // the closing [/INST] is already the cue
	return b.String(), nil
}
