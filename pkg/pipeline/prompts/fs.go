// Package prompts embeds the pipeline prompt templates.
package prompts

import "embed"

//go:embed *.md
var PromptsFS embed.FS
