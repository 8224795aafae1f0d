package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAssistantTemplate(t *testing.T) {
	p, err := Builder{}.Build(Input{Persona: "lawyer", Message: "Can my landlord keep my deposit?"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p, "<|begin_of_text|><|start_header_id|>system<|end_header_id|>\nYou are AVA! helpful and expert AI assistant acting as a lawyer."))
	assert.Contains(t, p, "appropriate for a lawyer.")
	assert.Contains(t, p, "<|eot_id|><|start_header_id|>user<|end_header_id|>\nCan my landlord keep my deposit?<|eot_id|>")
	assert.True(t, strings.HasSuffix(p, "<|start_header_id|>assistant<|end_header_id|>\n"))
}

func TestBuildVoiceStyle(t *testing.T) {
	b := Builder{AssistantName: "Nova"}
	p, err := b.Build(Input{Persona: "doctor", AgentName: "Max", Style: StyleVoice, Message: "hi"})
	require.NoError(t, err)
	assert.Contains(t, p, "You are Max, a professional doctor.")
	assert.Contains(t, p, "about 2-3 sentences")

	// without an agent name the configured assistant name is used
	sys := b.System(Input{Persona: "doctor", Style: StyleVoice})
	assert.True(t, strings.HasPrefix(sys, "You are Nova, a professional doctor."))
}

func TestBuildRejectsEmptyMessage(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := Builder{}.Build(Input{Persona: "lawyer", Message: msg})
		require.Error(t, err)
		assert.True(t, IsInvalidParameter(err))
		var ip *InvalidParameterError
		require.ErrorAs(t, err, &ip)
		assert.Equal(t, "message", ip.Field)
		assert.Equal(t, 400, ip.StatusCode())
	}
}

func TestBuildRejectsUnknownStyle(t *testing.T) {
	_, err := Builder{}.Build(Input{Message: "x", Style: "haiku"})
	assert.True(t, IsInvalidParameter(err))
}

func TestMessages(t *testing.T) {
	msgs, err := Builder{}.Messages(Input{Persona: "chef", Message: "pasta?", Style: StyleVoice, AgentName: "Remy"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You are Remy, a professional chef.")
	assert.Equal(t, Message{Role: "user", Content: "pasta?"}, msgs[1])
}

func TestBasePersonaWording(t *testing.T) {
	sys := Builder{}.System(Input{})
	assert.Contains(t, sys, "acting as a general assistant")
}

func TestStripControl(t *testing.T) {
	cases := []struct{ in, want string }{
		{" Hello there.<|eot_id|>", "Hello there."},
		{"<|start_header_id|>assistant<|end_header_id|>\nok", "assistant\nok"},
		{"plain", "plain"},
		{"keep <b>html</b> and |pipes|", "keep <b>html</b> and |pipes|"},
		{"<|reserved_special_token_3|>x", "x"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StripControl(c.in), "input %q", c.in)
	}
}
