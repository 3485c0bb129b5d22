package services

import (
	"strings"

	"github.com/cramwell/backend-go/internal/cache"
)

const summaryPrompt = `Based on the uploaded documents for this notebook, create a brief 2-3 sentence summary of the syllabus content.
Focus on the main topics and key concepts covered in the course materials.
Keep it concise and informative.`

const examPrompt = `Based on the uploaded documents for this notebook, generate exactly 5 comprehensive sample exam questions that would test understanding of the key concepts.

The questions should:
1. Cover different difficulty levels (easy, medium, hard)
2. Test both factual knowledge and conceptual understanding
3. Include multiple choice questions with 4 options each
4. Focus on the most important topics from the documents
5. Be specific to the content provided

Format the response as:
# Sample Exam Questions

1. [Question]?
   A) [Option]
   B) [Option]
   C) [Option]
   D) [Option]
   **Answer:** [Correct option]

2. [Question]?
   A) [Option]
   B) [Option]
   C) [Option]
   D) [Option]
   **Answer:** [Correct option]

Continue this pattern for exactly 5 questions. Generate questions that would be appropriate for a midterm or final exam in this subject area.`

const flashcardsPrompt = `Based on the uploaded documents for this notebook, generate 20-30 flashcards that cover the key concepts, definitions, and important facts.

The flashcards should:
1. Cover the most important concepts from the documents
2. Include definitions, key terms, and important facts
3. Be suitable for studying and memorization
4. Focus on both factual knowledge and conceptual understanding
5. Be clear and concise

Format the response as:
# Flashcards

**Front:** [Question/Concept/Definition]
**Back:** [Answer/Explanation]

**Front:** [Question/Concept/Definition]
**Back:** [Answer/Explanation]

Continue this pattern for 20-30 flashcards covering the most important content from the documents.`

// FeaturePrompt returns the question sent to the query engine for feature.
func FeaturePrompt(feature cache.FeatureType) string {
	switch feature {
	case cache.FeatureSummary:
		return summaryPrompt
	case cache.FeatureExam:
		return examPrompt
	case cache.FeatureFlashcards:
		return flashcardsPrompt
	default:
		return ""
	}
}

// renderFeature wraps a generated answer for storage.
func renderFeature(feature cache.FeatureType, answer string) string {
	answer = strings.TrimSpace(answer)
	if feature != cache.FeatureSummary {
		return answer
	}
	var b strings.Builder
	b.WriteString("# Course Summary\n\n## Syllabus Overview\n")
	b.WriteString(answer)
	b.WriteString("\n")
	return b.String()
}
