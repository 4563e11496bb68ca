package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"lurkbot/internal/domain"
)

// BuildChunks accumulates extracted elements into chunks of roughly
// chunkSize characters, never splitting inside an element. Chunk ids are
// content hashes, so re-ingesting an unchanged page produces the same ids
// and the store skips them.
func BuildChunks(elements []Element, sourceURL string, chunkSize int) []domain.KnowledgeChunk {
	var chunks []domain.KnowledgeChunk
	var sb strings.Builder

	flush := func() {
		content := strings.TrimSpace(sb.String())
		sb.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, domain.KnowledgeChunk{
			ID:        chunkID(sourceURL, content),
			SourceURL: sourceURL,
			Content:   content,
		})
	}

	for _, el := range elements {
		if sb.Len() > 0 && sb.Len()+len(el.Text) > chunkSize {
			flush()
		}
		sb.WriteString(el.Text)
		if el.Kind == "heading" {
			sb.WriteString("\n")
		} else {
			sb.WriteString("\n\n")
		}
	}
	flush()

	return chunks
}

func chunkID(sourceURL, content string) string {
	sum := sha256.Sum256([]byte(sourceURL + "\x00" + content))
	return hex.EncodeToString(sum[:8])
}
