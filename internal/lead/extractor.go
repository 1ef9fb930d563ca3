package lead

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrMalformedJSON means a lead-looking JSON object was found in the answer
// but failed to parse. Callers log it and treat the exchange as "no lead";
// it must never fail the exchange. Malformed payloads are not repaired:
// failures feed offline tuning of the instruction template instead.
var ErrMalformedJSON = errors.New("malformed lead JSON in completion")

// Record is a validated sales lead mined from a completion. Optional fields
// are empty strings, never null.
type Record struct {
	Detected bool   `json:"lead_detected"`
	Name     string `json:"nombre"`
	Phone    string `json:"telefono"`
	Email    string `json:"email"`
	Message  string `json:"mensaje"`
}

// leadPattern locates the smallest {...} window whose content contains
// "lead_detected" followed by true. Model output is not guaranteed to be
// valid JSON outside this object, so a non-greedy scan beats a full
// tokenizer here.
var leadPattern = regexp.MustCompile(`(?s)\{.*?"lead_detected"\s*:\s*true.*?\}`)

// Extract scans free text for an embedded lead object and validates it.
// Returns (Record{}, nil) when no lead object is present. Extraction is
// pure: notifying anyone about the lead is the caller's job.
func Extract(text string) (Record, error) {
	match := leadPattern.FindString(text)
	if match == "" {
		return Record{}, nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(match), &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	// Business rule: a detected lead needs at least one contact datum. The
	// model asserting lead_detected is not trusted on its own.
	if !rec.Detected {
		return Record{}, nil
	}
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Phone = strings.TrimSpace(rec.Phone)
	rec.Email = strings.TrimSpace(rec.Email)
	rec.Message = strings.TrimSpace(rec.Message)
	if rec.Name == "" && rec.Phone == "" && rec.Email == "" {
		return Record{}, nil
	}

	return rec, nil
}

// StripJSON removes the embedded lead object from the answer shown to the
// client; the contact blob is for the agent, not the end user.
func StripJSON(text string) string {
	return strings.TrimSpace(leadPattern.ReplaceAllString(text, ""))
}

// FormatAgentMessage renders the human-readable notification body sent to
// the agents when a lead is captured.
func FormatAgentMessage(rec Record, at time.Time) string {
	var b strings.Builder
	b.WriteString("📞 *Nuevo cliente interesado*:\n\n")
	b.WriteString("🧑 Nombre: " + rec.Name + "\n")
	b.WriteString("📱 Teléfono: " + rec.Phone + "\n")
	b.WriteString("📧 Email: " + rec.Email + "\n")
	b.WriteString("💬 Mensaje: " + rec.Message + "\n")
	b.WriteString("🕑 Fecha: " + at.Format("2006-01-02 15:04:05"))
	return b.String()
}
