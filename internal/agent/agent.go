package agent

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/antoniostano/interviewer/internal/interview"
)

const (
	DefaultName        = "ai_interviewer_agent"
	DefaultModel       = "gemini-2.0-flash-exp"
	DefaultDescription = "Agent to conduct AI-powered job interviews."
)

//go:embed interviewer.md.tmpl
var interviewerTemplate string

// text/template performs no escaping, so job and resume text land in the
// instructions byte for byte.
var instructionTemplate = template.Must(template.New("interviewer").Option("missingkey=error").Parse(interviewerTemplate))

// Config is everything the live runtime needs to run the interviewer.
type Config struct {
	Name        string
	Model       string
	Description string
	Instruction string
	Tools       []string
}

// Options overrides Build defaults. The zero value is valid.
type Options struct {
	Model string
}

type templateData struct {
	JobDescription string
	Resume         string
}

// Build renders the interviewer instructions for ic.
func Build(ic interview.Context, opts Options) (Config, error) {
	var buf bytes.Buffer
	if err := instructionTemplate.Execute(&buf, templateData{
		JobDescription: ic.JobDescription,
		Resume:         ic.Resume,
	}); err != nil {
		return Config{}, fmt.Errorf("render interviewer instructions: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	return Config{
		Name:        DefaultName,
		Model:       model,
		Description: DefaultDescription,
		Instruction: buf.String(),
		Tools:       []string{},
	}, nil
}
