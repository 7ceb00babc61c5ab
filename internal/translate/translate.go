// Package translate defines the translation-service collaborator and a
// Gemini-backed adapter, generalized to accept either a single interim
// string or a batch of finalized sentences in one call.
package translate

import "context"

// Translator is the external translation-service collaborator: a
// request/response translator accepting a batch of strings plus a
// source/target language pair. Implementations MUST preserve input order
// in the returned slice (result[i] is the translation of texts[i]).
type Translator interface {
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}
