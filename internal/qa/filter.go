package qa

import "github.com/mekonggpt/retrieval-go/internal/datastore"

// DefaultScoreThreshold is the relevance cutoff applied to retrieved chunks
// before they are handed to the completion API.
const DefaultScoreThreshold = 0.75

// FilterByScore flattens the result sets of all sub-queries into a single
// chunk sequence, keeping only chunks whose score strictly exceeds the
// threshold. Encounter order is preserved; ties at the threshold are
// excluded; there is no cap on the count. An empty result is valid — the
// completion call proceeds with no context.
func FilterByScore(results []datastore.QueryResult, threshold float32) []string {
	var chunks []string
	for _, result := range results {
		for _, sc := range result.Results {
			if sc.Score > threshold {
				chunks = append(chunks, sc.Text)
			}
		}
	}
	return chunks
}
