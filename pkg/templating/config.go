package templating

// TemplateConfig holds the safety limits applied to template functions.
type TemplateConfig struct {
	// MaxWords caps the word limit a template may request for one sentence.
	MaxWords int

	// MaxSentences caps the number of sentences produced by a single call to
	// sentences, paragraph or paragraphs.
	MaxSentences int

	// MaxParagraphs caps the paragraph count for paragraphs.
	MaxParagraphs int

	// MaxRepeat caps the length of the slice returned by repeat.
	MaxRepeat int
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() TemplateConfig {
	return TemplateConfig{
		MaxWords:      100,
		MaxSentences:  50,
		MaxParagraphs: 20,
		MaxRepeat:     1000,
	}
}

// clamp bounds n to [0, limit]. A limit of zero or less disables the cap.
func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
