/*
Package markov builds first-order Markov chain models over the words of a
text corpus and generates sentences that mimic the corpus's word adjacency
and punctuation.

A corpus is normalized (markup, brackets, quotes and control characters are
removed, "..." becomes "…"), split into sentences at terminator characters,
and every sentence is enclosed between the Start and End sentinels. Adjacent
token pairs are counted and normalized into per-source probabilities, and
terminator characters are counted into their own distribution. Generation is
a weighted random walk from Start until End is drawn or a word limit is hit.

Models are plain values that can be exported to JSON or YAML, or persisted in
a SQLite database through Store. Every model coming back from storage is
validated before use.

For a complete usage example, see the cmd/mimic command.
*/
package markov
