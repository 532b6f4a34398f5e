/*
Package templating renders Go text templates whose functions draw sentences
and paragraphs from stored Markov models.

Templates are loaded from a directory: files ending in ".tmpl" are executable
templates, files ending in ".part" are partials available to them through
{{template "name.part" .}}. Raw template strings can also be executed against
the same function set without touching the filesystem.

Model functions:

	{{sentence "model"}}               one sentence, default word limit
	{{sentence "model" 12}}            one sentence of at most 12 words
	{{sentences "model" 3}}            a []string of three sentences
	{{paragraph "model" 4}}            four sentences joined by spaces
	{{paragraphs "model" 2 3 6}}       two paragraphs of 3 to 6 sentences

Every count is clamped by the limits in TemplateConfig.
*/
package templating
