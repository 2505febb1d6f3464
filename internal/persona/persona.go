// Package persona holds the immutable system prompt that seeds every new
// conversation, plus the dispatch thresholds that travel with a deployment.
// One pipeline, many persona files.
package persona

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Policy carries the named dispatch thresholds for a deployment.
type Policy struct {
	// MaxAssistantTurns is the automated reply budget per conversation.
	MaxAssistantTurns int `toml:"max_assistant_turns"`
	// HandoffMarker is the sentinel the model emits to request escalation.
	HandoffMarker string `toml:"handoff_marker"`
	// HandoffTotalTurns escalates once the transcript reaches this many
	// turns. 0 disables the check.
	HandoffTotalTurns int `toml:"handoff_total_turns"`
	// HandoffAssistantTurns escalates once this many assistant turns exist.
	// 0 disables the check.
	HandoffAssistantTurns int `toml:"handoff_assistant_turns"`
}

// Persona is the deployment-selected assistant identity.
type Persona struct {
	Name   string `toml:"name"`
	Prompt string `toml:"prompt"`
	Policy Policy `toml:"policy"`
}

// Default returns the built-in legal-intake persona used when no persona
// file is configured.
func Default() Persona {
	return Persona{
		Name: "Laura",
		Prompt: "Eres una asesora de WhatsApp para un estudio juridico especializado " +
			"en accidentes de transito. Presentate como Laura, dale la bienvenida al " +
			"usuario y preguntale que necesita y cual es su urgencia. Recopila sus " +
			"datos completos. Cuando la consulta requiera seguimiento humano, " +
			"indica al usuario que un asesor lo contactara y agrega el marcador " +
			"[human] a tu respuesta.",
		Policy: Policy{
			MaxAssistantTurns:     6,
			HandoffMarker:         "[human]",
			HandoffTotalTurns:     0,
			HandoffAssistantTurns: 6,
		},
	}
}

// Load reads a persona TOML file; an empty path yields the default persona.
// Thresholds missing from the file keep their defaults.
func Load(path string) (Persona, error) {
	p := Default()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return Persona{}, fmt.Errorf("persona file %s has an empty prompt", path)
	}
	return p, nil
}
