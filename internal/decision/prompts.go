package decision

import (
	"fmt"
	"strings"
	"unicode"

	"topicflow/internal/models"
	"topicflow/internal/util"
)

// VerifyPrompt builds the bounded judgment prompt for the uncertain band.
// Both sides are excerpted so the prompt stays a few hundred characters of
// context per side regardless of content size.
func VerifyPrompt(topic models.Topic, candidate models.DocumentEmbedding, similarity float64, excerptRunes int) string {
	return fmt.Sprintf(`Decide whether the incoming topic covers the same subject as the existing document.

Topic title: %s
Topic excerpt: %s

Document title: %s
Document summary: %s

Embedding similarity: %.3f

Answer with exactly one word: MERGE if the topic belongs in the existing document, CREATE if it deserves a new document.`,
		util.Excerpt(topic.Title, 120),
		util.Excerpt(topic.Content, excerptRunes),
		util.Excerpt(candidate.Title, 120),
		util.Excerpt(candidate.Summary, excerptRunes),
		similarity,
	)
}

// ParseVerdict extracts the constrained MERGE/CREATE token from a completion
// response. The first recognized token wins; anything else is unparsed.
func ParseVerdict(s string) (models.Action, error) {
	up := strings.ToUpper(s)
	fields := strings.FieldsFunc(up, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, f := range fields {
		switch f {
		case "MERGE":
			return models.ActionMerge, nil
		case "CREATE":
			return models.ActionCreate, nil
		}
	}
	return "", util.ErrVerdictUnparsed
}
