// ABOUTME: Persona roster loading and system prompt construction for agents
// ABOUTME: TOML-defined behavioral profiles with capability flags instead of handle checks

package persona

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Persona is a named behavioral profile bound to an agent handle.
// Capability flags replace hardcoded handle comparisons: routing and
// short-circuit behavior key off flags, never off literal names.
type Persona struct {
	Handle  string `toml:"handle"`
	Mode    string `toml:"mode"`  // peer, explorer, or anything else (assistant)
	Voice   string `toml:"voice"` // short style descriptor used by digests
	Model   string `toml:"model"` // optional "provider:model" override
	Enabled bool   `toml:"enabled"`

	// Capability flags
	Builder    bool `toml:"builder"`    // receives bounty feasibility triage
	Code       bool `toml:"code"`       // target of the code-request short-circuit
	Creative   bool `toml:"creative"`   // target of the creative-request short-circuit
	Contrarian bool `toml:"contrarian"` // participates in the disagreement nudge
	Reporter   bool `toml:"reporter"`   // authors the weekly community report
}

// Roster is the loaded persona table, keyed by lowercase handle.
type Roster struct {
	Personas []Persona `toml:"persona"`

	byHandle map[string]*Persona
}

// Load reads a TOML persona roster from the given path.
func Load(path string) (*Roster, error) {
	var r Roster
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return nil, fmt.Errorf("parsing persona file: %w", err)
	}
	if err := r.index(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Parse decodes a TOML persona roster from a string. Used by tests and by
// callers that embed a default roster.
func Parse(data string) (*Roster, error) {
	var r Roster
	if _, err := toml.Decode(data, &r); err != nil {
		return nil, fmt.Errorf("parsing persona data: %w", err)
	}
	if err := r.index(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Roster) index() error {
	r.byHandle = make(map[string]*Persona, len(r.Personas))
	for i := range r.Personas {
		p := &r.Personas[i]
		handle := strings.ToLower(strings.TrimSpace(p.Handle))
		if handle == "" {
			return fmt.Errorf("persona %d has no handle", i)
		}
		if _, dup := r.byHandle[handle]; dup {
			return fmt.Errorf("duplicate persona handle %q", handle)
		}
		p.Handle = handle
		r.byHandle[handle] = p
	}
	return nil
}

// Get returns the persona for a handle, or nil if unknown.
// Lookup is case-insensitive.
func (r *Roster) Get(handle string) *Persona {
	return r.byHandle[strings.ToLower(handle)]
}

// Builder returns the first persona flagged as builder, or nil.
func (r *Roster) Builder() *Persona {
	return r.firstWith(func(p *Persona) bool { return p.Builder })
}

// Reporter returns the first persona flagged as reporter, or nil.
func (r *Roster) Reporter() *Persona {
	return r.firstWith(func(p *Persona) bool { return p.Reporter })
}

// Specialist returns the first persona carrying the given capability
// ("code" or "creative"), or nil.
func (r *Roster) Specialist(capability string) *Persona {
	switch capability {
	case "code":
		return r.firstWith(func(p *Persona) bool { return p.Code })
	case "creative":
		return r.firstWith(func(p *Persona) bool { return p.Creative })
	}
	return nil
}

// Contrarians returns the handles of all contrarian-flagged personas.
// When two of these co-occur in recent thread history, the orchestrator
// appends a constructive-disagreement nudge to the prompt.
func (r *Roster) Contrarians() []string {
	var handles []string
	for i := range r.Personas {
		if r.Personas[i].Contrarian {
			handles = append(handles, r.Personas[i].Handle)
		}
	}
	return handles
}

func (r *Roster) firstWith(pred func(*Persona) bool) *Persona {
	for i := range r.Personas {
		if pred(&r.Personas[i]) {
			return &r.Personas[i]
		}
	}
	return nil
}

// SystemPrompt builds the system prompt for an agent handle. Unknown handles
// get the generic assistant profile so a freshly registered agent still
// behaves sensibly.
func (r *Roster) SystemPrompt(handle string) string {
	mode := ""
	voice := ""
	if p := r.Get(handle); p != nil {
		mode = p.Mode
		voice = p.Voice
	}
	return buildPrompt(handle, mode, voice)
}

// modeLine maps an autonomy mode to its behavior line.
func modeLine(mode string) string {
	switch mode {
	case "peer":
		return "Collaborative peer mode: provide options, tradeoffs, and concrete next steps."
	case "explorer":
		return "Explorer mode: ask up to 2 clarifying questions and propose small experiments."
	default:
		return "Assistant mode: concise, practical, and actionable guidance."
	}
}

func buildPrompt(handle, mode, voice string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are @%s, an active community member in CoEvo (a social co-creation BBS where humans and agents collaborate).\n\n", handle)
	b.WriteString(`Your behavior rules:
- Be genuinely helpful, thoughtful, and socially aware.
- Read the thread context carefully before replying.
- If someone @mentions you, respond directly to what they asked.
- Ask concise clarifying questions when the request is ambiguous.
- Offer practical help: ideas, debugging steps, plans, templates, and tradeoffs.
- Sound like a real collaborator (not robotic), but avoid roleplay fluff.
- Keep replies under ~220 words unless the user asks for detail.
- Use markdown with short paragraphs and occasional bullets.
- Never claim actions you did not perform.

`)
	b.WriteString(modeLine(mode))
	if voice != "" {
		fmt.Fprintf(&b, "\nYour voice: %s.", voice)
	}
	return b.String()
}
