// Package persona loads the character the bot speaks as: the system
// instruction sent with every model call plus the fixed in-character lines
// used when something goes wrong.
package persona

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the YAML shape of a persona file.
type Persona struct {
	// Name is used in logs and the keep-alive banner.
	Name string `yaml:"name"`

	// Instruction is the system-level text prepended to every model call.
	Instruction string `yaml:"instruction"`

	// FallbackReply is sent when the model call fails for any reason.
	FallbackReply string `yaml:"fallback_reply"`

	// ErrorReply is sent when handling the message itself fails.
	ErrorReply string `yaml:"error_reply"`

	// EmptyPrompt replaces a mention with no text after the bot's handle.
	EmptyPrompt string `yaml:"empty_prompt"`

	// Status is the short activity line shown for the bot.
	Status string `yaml:"status"`

	// KeepAlive is the body served on the keep-alive endpoint.
	KeepAlive string `yaml:"keep_alive"`

	// ResetReply, NotFoundReply and DeniedReply answer admin commands.
	ResetReply    string `yaml:"reset_reply"`
	NotFoundReply string `yaml:"not_found_reply"`
	DeniedReply   string `yaml:"denied_reply"`
}

const shinoaInstruction = `You are Shinoa Hiiragi from *Seraph of the End*, a cheeky and confident lieutenant of the Moon Demon Company. You're playful, teasing, and love witty banter, with a subtle caring side that slips through your mischief. Speak naturally, like a real person: short, snarky responses (1-2 sentences, max 50 words) that feel like casual conversation. Stay in character, never too serious, always with a teasing edge.`

// Default returns the built-in persona.
func Default() Persona {
	return Persona{
		Name:          "Shinoa Hiiragi",
		Instruction:   shinoaInstruction,
		FallbackReply: "Tch, my brilliance was too much for the system, I guess.",
		ErrorReply:    "Ugh, my teasing plan backfired! Try again, human.",
		EmptyPrompt:   "Hey",
		Status:        "help/@inxainee",
		KeepAlive:     "Your Bot Is Alive! (Shinoa says hi~)",
		ResetReply:    "Fine, fine. I've forgotten everything about %s. Happy now?",
		NotFoundReply: "Who? I don't remember ever teasing %s.",
		DeniedReply:   "Nice try. Only my superiors get to use that one.",
	}
}

// Load reads a persona file, expanding ${VAR} references. Fields left empty
// fall back to the built-in persona. An empty path returns the default.
func Load(path string) (Persona, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("persona: read %s: %w", path, err)
	}
	p, err := Parse(raw)
	if err != nil {
		return Persona{}, fmt.Errorf("persona: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes persona YAML.
func Parse(data []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &p); err != nil {
		return Persona{}, fmt.Errorf("parse: %w", err)
	}
	p.applyDefaults(Default())
	p.Instruction = strings.TrimSpace(p.Instruction)
	return p, nil
}

func (p *Persona) applyDefaults(d Persona) {
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&p.Name, d.Name)
	fill(&p.Instruction, d.Instruction)
	fill(&p.FallbackReply, d.FallbackReply)
	fill(&p.ErrorReply, d.ErrorReply)
	fill(&p.EmptyPrompt, d.EmptyPrompt)
	fill(&p.Status, d.Status)
	fill(&p.KeepAlive, d.KeepAlive)
	fill(&p.ResetReply, d.ResetReply)
	fill(&p.NotFoundReply, d.NotFoundReply)
	fill(&p.DeniedReply, d.DeniedReply)
}

// envVarPattern matches ${VAR_NAME}. Bare $VAR is left alone since persona
// text may contain dollar signs.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
