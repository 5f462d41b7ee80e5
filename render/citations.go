package render

import (
	"fmt"
	"regexp"
	"strings"
)

// markdownLinkRe matches inline links and images without nested brackets:
// [text](url) and ![alt](url).
var markdownLinkRe = regexp.MustCompile(`(!?)\[([^\[\]]*)\]\(([^()\s]+)\)`)

// ConvertToCitations rewrites inline links and images as numbered
// references listed after a rule at the end of the document. A URL that
// appears more than once keeps its first number.
func ConvertToCitations(markdown string) string {
	numbers := make(map[string]int)
	var refs []string

	out := markdownLinkRe.ReplaceAllStringFunc(markdown, func(m string) string {
		parts := markdownLinkRe.FindStringSubmatch(m)
		bang, label, target := parts[1], parts[2], parts[3]

		n, ok := numbers[target]
		if !ok {
			n = len(refs) + 1
			numbers[target] = n
			refs = append(refs, fmt.Sprintf("[%d]: %s", n, target))
		}
		return fmt.Sprintf("%s[%s][%d]", bang, label, n)
	})
	if len(refs) == 0 {
		return markdown
	}
	return out + "\n\n---\n" + strings.Join(refs, "\n")
}
