// Package extract finds actionable tasks in emails.
//
// Prefilter is a cheap local check that decides whether an email is worth
// a model call at all. Extractor sends the email to an ai.Completer with a
// strict JSON prompt, validates the answer with ParseResponse and turns
// deadline phrases into timestamps with DeadlineNormalizer.
//
// Extraction never fails hard on model trouble: the caller always gets a
// well-typed Result, and an *ExtractionError says why it is empty.
package extract
