package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jmespath/go-jmespath"
)

var templatePattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// ResolveTemplate resolves {{EXPR}} placeholders against the workflow
// context, where EXPR is a JMESPath expression. A whole-string template
// returns the raw JMESPath value with its type preserved; anything else
// splices stringified values into the surrounding text, with null
// rendered as the empty string. Non-string inputs pass through
// unchanged, and a failing evaluation yields null rather than an error.
func ResolveTemplate(value interface{}, wfCtx map[string]interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}

	if m := templatePattern.FindStringSubmatch(s); m != nil && m[0] == s {
		return searchPath(m[1], wfCtx)
	}

	return templatePattern.ReplaceAllStringFunc(s, func(placeholder string) string {
		expr := templatePattern.FindStringSubmatch(placeholder)[1]
		resolved := searchPath(expr, wfCtx)
		if resolved == nil {
			return ""
		}
		return fmt.Sprint(resolved)
	})
}

func searchPath(expr string, wfCtx map[string]interface{}) interface{} {
	result, err := jmespath.Search(strings.TrimSpace(expr), wfCtx)
	if err != nil {
		return nil
	}
	return result
}
