// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package chunker splits page text into overlapping chunks using recursive
// character splitting. Lengths are measured in runes.
package chunker

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sigil-dev/docqa/internal/document"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of characters carried over
// between neighbouring chunks.
const DefaultChunkOverlap = 100

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is a contiguous span of one page's text.
type Chunk struct {
	Index        int
	Page         int
	DocumentHash string
	Text         string
}

// Splitter implements recursive character text splitting.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

// WithSeparators replaces the separator hierarchy. The last separator should
// be "" so that any text can be split.
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		s.separators = separators
	}
}

// New creates a Splitter. The overlap must be smaller than the chunk size.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, dqerr.Errorf(dqerr.CodeChunkerOptionsInvalid, "chunk size must be positive, got %d", s.chunkSize)
	}
	if s.overlap < 0 || s.overlap >= s.chunkSize {
		return nil, dqerr.Errorf(dqerr.CodeChunkerOptionsInvalid,
			"chunk overlap must be in [0, %d), got %d", s.chunkSize, s.overlap)
	}
	if len(s.separators) == 0 {
		return nil, dqerr.New(dqerr.CodeChunkerOptionsInvalid, "at least one separator is required")
	}
	return s, nil
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// SplitPages splits every page independently so no chunk spans a page
// boundary. Chunk indexes run across the whole document in page order.
func (s *Splitter) SplitPages(hash string, pages []document.Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		for _, text := range s.SplitText(page.Text) {
			chunks = append(chunks, Chunk{
				Index:        len(chunks),
				Page:         page.Number,
				DocumentHash: hash,
				Text:         text,
			})
		}
	}
	return chunks
}

// SplitText splits a single text into chunks of at most ChunkSize
// characters, unless an unsplittable piece is longer.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	var (
		chunks []string
		good   []string
	)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(remaining) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, remaining)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge packs consecutive pieces into chunks no longer than chunkSize,
// seeding each new chunk with trailing pieces of the previous one up to
// the overlap. Pieces already carry their separators.
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.chunkSize {
			if total > s.chunkSize {
				slog.Debug("chunk longer than configured size", "length", total, "chunk_size", s.chunkSize)
			}
			if len(current) > 0 {
				if joined := join(current); joined != "" {
					chunks = append(chunks, joined)
				}
				for total > s.overlap || (total+n > s.chunkSize && total > 0) {
					total -= runeLen(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n
	}
	if joined := join(current); joined != "" {
		chunks = append(chunks, joined)
	}
	return chunks
}

// splitKeepingSeparator splits text on sep and attaches each separator to
// the start of the piece that follows it. An empty separator splits into
// single characters. Empty pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, part := range parts[1:] {
		pieces = append(pieces, sep+part)
	}
	return pieces
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
