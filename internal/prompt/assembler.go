package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMissingBinding means a template slot was left unbound at render time.
// That is a programmer error, not a runtime condition to recover from.
var ErrMissingBinding = errors.New("template slot not bound")

// ContextSeparator joins retrieved chunks in relevance order.
const ContextSeparator = "\n\n---\n\n"

// Slot names every template must be rendered with.
const (
	SlotCurrentDate = "current_date"
	SlotChatHistory = "chat_history"
	SlotContext     = "context"
	SlotQuestion    = "question"
)

type Bindings struct {
	CurrentDate string
	ChatHistory string
	Context     string
	Question    string
}

var slotPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Assembler renders one model-input payload from a fixed instruction
// template with named slots. Every slot appearing in the template must be
// bound; rendering fails with ErrMissingBinding otherwise.
type Assembler struct {
	template string
	slots    []string
}

func NewAssembler(template string) *Assembler {
	seen := map[string]bool{}
	var slots []string
	for _, m := range slotPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			slots = append(slots, m[1])
		}
	}
	return &Assembler{template: template, slots: slots}
}

// Render substitutes every slot. The result is deterministic for identical
// bindings.
func (a *Assembler) Render(b Bindings) (string, error) {
	values := map[string]string{
		SlotCurrentDate: b.CurrentDate,
		SlotChatHistory: b.ChatHistory,
		SlotContext:     b.Context,
		SlotQuestion:    b.Question,
	}

	for _, slot := range a.slots {
		if _, ok := values[slot]; !ok {
			return "", fmt.Errorf("%w: %q", ErrMissingBinding, slot)
		}
	}
	if b.CurrentDate == "" || b.Question == "" {
		return "", fmt.Errorf("%w: current_date and question are required", ErrMissingBinding)
	}

	out := a.template
	for _, slot := range a.slots {
		out = strings.ReplaceAll(out, "{"+slot+"}", values[slot])
	}
	return out, nil
}

// JoinContext concatenates retrieved chunk texts in relevance order.
func JoinContext(chunks []string) string {
	return strings.Join(chunks, ContextSeparator)
}
