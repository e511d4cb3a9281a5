// Package similarity scores how alike two email subjects are.
//
// Scores are TF-IDF cosine similarities over the two-subject corpus with
// English stop words removed, scaled to the range 0 to 100. Degenerate
// inputs (empty, shorter than three characters, or made only of stop words)
// score 0.
package similarity
