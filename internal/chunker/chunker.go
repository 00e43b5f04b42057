// Package chunker splits memory content into embedding-sized chunks on
// paragraph then sentence boundaries, with overlap and small-chunk merge.
package chunker

import (
	"regexp"
	"strings"
)

const (
	DefaultMaxTokens    = 400
	DefaultOverlapToken = 40
	DefaultMinChunkSize = 60
)

// Options configures chunking behavior.
type Options struct {
	MaxTokens     int
	OverlapTokens int
	MinChunkSize  int
}

// DefaultOptions returns the default chunking configuration.
func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		OverlapTokens: DefaultOverlapToken,
		MinChunkSize:  DefaultMinChunkSize,
	}
}

// Chunk is a single emitted fragment with its position in the stream.
type Chunk struct {
	Content string
	Index   int
	Total   int
}

var paragraphSplit = regexp.MustCompile(`\n{2,}`)
var sentenceSplit = regexp.MustCompile(`(?:[.!?])\s+`)

// estimateTokens approximates token count as ceil(len_chars/4).
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}

// Split chunks content into a deterministic, finite stream of Chunks. Short
// content (within MaxTokens) always yields a single chunk.
func Split(content string, opts Options) []Chunk {
	if opts.MaxTokens == 0 {
		opts = DefaultOptions()
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if estimateTokens(content) <= opts.MaxTokens {
		return []Chunk{{Content: content, Index: 0, Total: 1}}
	}

	paragraphs := paragraphSplit.Split(content, -1)
	var raw []string

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if estimateTokens(p) > opts.MaxTokens {
			raw = append(raw, splitSentences(p, opts)...)
		} else {
			raw = append(raw, p)
		}
	}

	pieces := accumulate(raw, opts)
	pieces = mergeSmall(pieces, opts)

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Content: p, Index: i, Total: len(pieces)}
	}
	return chunks
}

// splitSentences breaks an over-long paragraph on sentence boundaries and
// greedily accumulates the resulting sentences, without overlap.
func splitSentences(paragraph string, opts Options) []string {
	// Cut right after each terminating punctuation mark so the mark stays
	// with its sentence; only the whitespace that follows it is dropped.
	var sentences []string
	start := 0
	for _, loc := range sentenceSplit.FindAllStringIndex(paragraph, -1) {
		sentences = append(sentences, paragraph[start:loc[0]+1])
		start = loc[1]
	}
	sentences = append(sentences, paragraph[start:])
	var out []string
	var cur strings.Builder

	for _, sent := range sentences {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		candidate := sent
		if cur.Len() > 0 {
			candidate = cur.String() + " " + sent
		}
		if estimateTokens(candidate) > opts.MaxTokens && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			cur.WriteString(sent)
		} else {
			cur.Reset()
			cur.WriteString(candidate)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// accumulate greedily packs paragraphs/sentence-groups into chunks bounded
// by MaxTokens, carrying an overlap tail of approximately
// OverlapTokens/2 words from the previous chunk onto the next.
func accumulate(pieces []string, opts Options) []string {
	var out []string
	var cur strings.Builder

	for _, p := range pieces {
		candidate := p
		if cur.Len() > 0 {
			candidate = cur.String() + "\n\n" + p
		}
		if estimateTokens(candidate) > opts.MaxTokens && cur.Len() > 0 {
			emitted := cur.String()
			out = append(out, emitted)

			tail := overlapTail(emitted, opts.OverlapTokens/2)
			cur.Reset()
			if tail != "" {
				cur.WriteString(tail)
				cur.WriteString("\n\n")
			}
			cur.WriteString(p)
		} else {
			cur.Reset()
			cur.WriteString(candidate)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// overlapTail returns the last n words of s, a rough proxy for
// n overlap tokens' worth of words.
func overlapTail(s string, words int) string {
	if words <= 0 {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	if words > len(fields) {
		words = len(fields)
	}
	return strings.Join(fields[len(fields)-words:], " ")
}

// mergeSmall merges chunks smaller than MinChunkSize tokens into an
// adjacent chunk when the merged result stays within MaxTokens; otherwise
// the small chunk is left standalone.
func mergeSmall(pieces []string, opts Options) []string {
	if len(pieces) <= 1 {
		return pieces
	}

	merged := make([]string, 0, len(pieces))
	i := 0
	for i < len(pieces) {
		p := pieces[i]
		if estimateTokens(p) >= opts.MinChunkSize || len(merged) == 0 {
			merged = append(merged, p)
			i++
			continue
		}
		// p is small: try to fold into the previous emitted chunk, then
		// the next unprocessed one, else leave it standalone.
		prev := merged[len(merged)-1]
		combined := prev + "\n\n" + p
		if estimateTokens(combined) <= opts.MaxTokens {
			merged[len(merged)-1] = combined
		} else if i+1 < len(pieces) && estimateTokens(p+"\n\n"+pieces[i+1]) <= opts.MaxTokens {
			pieces[i+1] = p + "\n\n" + pieces[i+1]
		} else {
			merged = append(merged, p)
		}
		i++
	}
	return merged
}
