package reference

import "strings"

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 0.75 words per token for English text.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// Budget renders passages in document order until maxTokens is reached. A
// passage that does not fit is cut at a word boundary and the rest dropped.
func Budget(doc *Document, maxTokens int) string {
	if doc == nil || maxTokens <= 0 {
		return ""
	}
	var sb strings.Builder
	used := 0
	var lastCrumb string
	for _, p := range doc.Passages {
		crumb := strings.Join(p.Breadcrumb, " > ")
		var block strings.Builder
		if crumb != "" && crumb != lastCrumb {
			block.WriteString("## ")
			block.WriteString(crumb)
			block.WriteString("\n")
		}
		block.WriteString(p.Text)

		tokens := EstimateTokens(block.String())
		if used+tokens > maxTokens {
			remaining := maxTokens - used
			if cut := cutWords(block.String(), int(float64(remaining)/1.33)); cut != "" {
				writeSep(&sb)
				sb.WriteString(cut)
			}
			break
		}
		writeSep(&sb)
		sb.WriteString(block.String())
		used += tokens
		lastCrumb = crumb
	}
	return sb.String()
}

func writeSep(sb *strings.Builder) {
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
}

// cutWords keeps the first n words of s, preserving line breaks between them.
func cutWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	inWord := false
	for i, r := range s {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !space && !inWord {
			count++
			if count > n {
				return strings.TrimSpace(s[:i])
			}
		}
		inWord = !space
	}
	return strings.TrimSpace(s)
}
