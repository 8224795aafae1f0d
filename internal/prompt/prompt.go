// Package prompt renders persona chat prompts in the Llama 3 instruct
// template.
package prompt

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Style selects the system prompt wording.
type Style string

const (
	// StyleAssistant is the text chat persona prompt.
	StyleAssistant Style = "assistant"
	// StyleVoice is the shorter prompt used for spoken replies.
	StyleVoice Style = "voice"
)

// DefaultAssistantName names the assistant when none is configured.
const DefaultAssistantName = "AVA"

const (
	beginOfText = "<|begin_of_text|>"
	eot         = "<|eot_id|>"
)

// controlToken matches Llama 3 special tokens such as <|eot_id|>.
var controlToken = regexp.MustCompile(`<\|[a-z_0-9]+\|>`)

// InvalidParameterError reports unusable prompt input.
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidParameterError) StatusCode() int { return http.StatusBadRequest }

// IsInvalidParameter reports whether err is an InvalidParameterError.
func IsInvalidParameter(err error) bool {
	var ip *InvalidParameterError
	return errors.As(err, &ip)
}

// Input is what a prompt is built from.
type Input struct {
	Persona   string
	AgentName string // voice style only; defaults to the assistant name
	Style     Style
	Message   string
}

// Message is a role-tagged chat message for chat-API backends.
type Message struct {
	Role    string
	Content string
}

// Builder renders prompts. The zero value uses DefaultAssistantName.
type Builder struct {
	AssistantName string
}

func (b Builder) name() string {
	if n := strings.TrimSpace(b.AssistantName); n != "" {
		return n
	}
	return DefaultAssistantName
}

// System returns the system segment for in.
func (b Builder) System(in Input) string {
	persona := strings.TrimSpace(in.Persona)
	if persona == "" {
		persona = "general assistant"
	}
	if in.Style == StyleVoice {
		agent := strings.TrimSpace(in.AgentName)
		if agent == "" {
			agent = b.name()
		}
		return fmt.Sprintf("You are %s, a professional %s. "+
			"Answer as a helpful, concise AI assistant. "+
			"Reply clearly, with a friendly but expert tone. Only answer what the user asks, do not repeat your introduction. "+
			"Limit your response to about 2-3 sentences. If your output is cut off, end your last sentence cleanly.",
			agent, persona)
	}
	return fmt.Sprintf("You are %s! helpful and expert AI assistant acting as a %s. "+
		"Stay in character and give accurate, concise, and relevant answers. "+
		"Use professional language appropriate for a %s. Be a little humorous. "+
		"Explain every term if the user doesn't understand.",
		b.name(), persona, persona)
}

func validate(in Input) error {
	if strings.TrimSpace(in.Message) == "" {
		return &InvalidParameterError{Field: "message", Reason: "must not be empty"}
	}
	switch in.Style {
	case "", StyleAssistant, StyleVoice:
		return nil
	}
	return &InvalidParameterError{Field: "style", Reason: fmt.Sprintf("unknown style %q", in.Style)}
}

// Build renders the full prompt: system turn, user turn and an open
// assistant header for the model to complete.
func (b Builder) Build(in Input) (string, error) {
	if err := validate(in); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(beginOfText)
	turn(&sb, "system", b.System(in))
	turn(&sb, "user", in.Message)
	header(&sb, "assistant")
	return sb.String(), nil
}

// Messages returns the system and user turns as role messages.
func (b Builder) Messages(in Input) ([]Message, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	return []Message{
		{Role: "system", Content: b.System(in)},
		{Role: "user", Content: in.Message},
	}, nil
}

func header(sb *strings.Builder, role string) {
	sb.WriteString("<|start_header_id|>")
	sb.WriteString(role)
	sb.WriteString("<|end_header_id|>\n")
}

func turn(sb *strings.Builder, role, content string) {
	header(sb, role)
	sb.WriteString(content)
	sb.WriteString(eot)
}

// StripControl removes special tokens from generated text and trims it.
func StripControl(s string) string {
	return strings.TrimSpace(controlToken.ReplaceAllString(s, ""))
}
