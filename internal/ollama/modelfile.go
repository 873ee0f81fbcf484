package ollama

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// modelfileTemplate is the Modelfile written for every trained model. The
// system prompt instructs the model to lean on its knowledge base instead
// of parroting single examples.
const modelfileTemplate = `FROM %s

SYSTEM "%s

You have access to a vector-based knowledge base. When responding:

1. Retrieve relevant context: use semantic similarity to find the most relevant examples from your knowledge base
2. Synthesize responses: combine insights from multiple relevant sources instead of copying single examples
3. Maintain diversity: vary response style and approach based on the specific question
4. Stay contextual: adapt responses to the user's specific needs
5. Avoid repetition: do not repeat the same examples for similar questions

If no relevant context is found, acknowledge this and answer from base training."

PARAMETER num_ctx %d
PARAMETER temperature %g
PARAMETER top_p %g
PARAMETER top_k %d
PARAMETER repeat_penalty %g
PARAMETER repeat_last_n 64
`

// ModelfileParams are the generation parameters baked into a Modelfile.
type ModelfileParams struct {
	NumCtx        int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
}

// DefaultModelfileParams returns the standard parameter set for trained
// models.
func DefaultModelfileParams() ModelfileParams {
	return ModelfileParams{
		NumCtx:        4096,
		Temperature:   0.8,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
	}
}

// BuildModelfile renders a Modelfile for a trained model. roleDefinition
// becomes the system prompt preamble; if empty a generic assistant role is
// used with jobName as the persona.
func BuildModelfile(jobName, baseModel, roleDefinition string, params ModelfileParams) string {
	if roleDefinition == "" {
		roleDefinition = fmt.Sprintf(
			"You are %s, an advanced AI assistant with access to a comprehensive knowledge base.", jobName)
	}
	// Quotes inside the SYSTEM block would terminate it early.
	roleDefinition = strings.ReplaceAll(roleDefinition, `"`, `'`)

	return fmt.Sprintf(modelfileTemplate,
		baseModel, roleDefinition,
		params.NumCtx, params.Temperature, params.TopP, params.TopK, params.RepeatPenalty)
}

// WriteModelfile writes the Modelfile for a job under dir/<jobName>/Modelfile
// and returns the written path.
func WriteModelfile(dir, jobName, content string) (string, error) {
	path := filepath.Join(dir, jobName, "Modelfile")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create modelfile dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write modelfile: %w", err)
	}
	return path, nil
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeModelName converts a job name into a valid Ollama model name.
// The version tag is preserved when present; otherwise :latest is appended.
// Only the base name is sanitized.
func SanitizeModelName(name string) string {
	base, version, hasVersion := strings.Cut(name, ":")
	sanitized := strings.Trim(invalidNameChars.ReplaceAllString(strings.ToLower(base), "-"), "-")
	if hasVersion {
		return sanitized + ":" + version
	}
	return sanitized + ":latest"
}
