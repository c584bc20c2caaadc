package ingest

import (
	"fmt"
	"strings"

	"topicflow/internal/models"
	"topicflow/internal/util"
)

func createPrompt(topic models.Topic) string {
	keywords := strings.Join(topic.Keywords, ", ")
	return fmt.Sprintf(`Write a well-structured knowledge-base article from the source material below. Organize it with short sections, keep every fact from the source, and do not invent information.

Title: %s
Category: %s
Keywords: %s

Source material:
%s

Return only the article text.`,
		util.Excerpt(topic.Title, 200), topic.Category, keywords, util.SanitizeText(topic.Content))
}

func mergePrompt(doc models.Document, topic models.Topic) string {
	return fmt.Sprintf(`Fold the new topic into the existing document. Keep the document's structure, integrate the new information where it belongs, and remove duplication. Return the complete updated document text and nothing else.

Existing document titled %q:
%s

New topic titled %q:
%s`,
		doc.Title, util.SanitizeText(doc.Content), topic.Title, util.SanitizeText(topic.Content))
}

// docEmbedText renders the canonical text a document-level embedding is
// computed from. It must stay derived from the current content so the stored
// embedding never drifts from what readers retrieve.
func docEmbedText(doc models.Document) string {
	parts := []string{util.Excerpt(doc.Title, 200)}
	if doc.Summary != "" {
		parts = append(parts, util.Excerpt(doc.Summary, 400))
	}
	parts = append(parts, util.Excerpt(doc.Content, 2000))
	return strings.Join(parts, "\n")
}
