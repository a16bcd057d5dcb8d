// Package kmer implements the packed representation of fixed-length DNA
// subsequences (k-mers).
//
// A k-mer of length L is the 2L-bit integer obtained by concatenating the
// 2-bit codes of its bases, first base most significant:
//
//	A = 00, C = 01, G = 10, T = 11
//
// The integer is stored right-aligned in ceil(L/32) uint64 words, most
// significant word first. The bits of the first word above the packed bases
// are always zero, so two k-mers of equal length compare like integers and
// like their decoded strings.
//
// Complementing a base is a bitwise NOT of its code (A<->T, C<->G).
//
// Values are immutable: every operation returns a new Kmer and Words returns
// a copy of the packed words.
package kmer

import (
	"errors"
	"fmt"
)

// BasesPerWord is the number of bases packed into one uint64 word.
const BasesPerWord = 32

var (
	// ErrEmptyInput is returned when encoding a zero-length sequence.
	ErrEmptyInput = errors.New("kmer: empty input")

	// ErrInvalidAlphabet is returned when a sequence contains a byte outside {A,C,G,T}.
	ErrInvalidAlphabet = errors.New("kmer: invalid nucleotide")

	// ErrInvalidLength is returned when a length is not positive or does not match
	// the supplied packed data.
	ErrInvalidLength = errors.New("kmer: invalid length")

	// ErrDirtyPadding is returned when packed data has bits set above the packed bases.
	ErrDirtyPadding = errors.New("kmer: non-zero padding bits")
)

// Kmer is a packed k-mer. The zero value is an empty k-mer that is only
// produced internally (zero-length suffixes); Encode never returns it.
type Kmer struct {
	length int
	words  []uint64
}

// WordCount returns the number of words needed to pack length bases.
func WordCount(length int) int {
	return (length + BasesPerWord - 1) / BasesPerWord
}

// ByteCount returns the number of bytes needed to pack length bases.
func ByteCount(length int) int {
	return (2*length + 7) / 8
}

// Len returns the number of bases.
func (k Kmer) Len() int {
	return k.length
}

// Words returns a copy of the packed words, most significant first.
func (k Kmer) Words() []uint64 {
	out := make([]uint64, len(k.words))
	copy(out, k.words)
	return out
}

// Base returns the 2-bit code of the i-th base (0 is the leftmost base).
func (k Kmer) Base(i int) byte {
	if i < 0 || i >= k.length {
		panic(fmt.Sprintf("kmer: base index %d out of range [0,%d)", i, k.length))
	}
	return byte(k.bitsAt(2*(k.length-1-i), 2))
}

// FromWords builds a k-mer from packed words, most significant first.
func FromWords(length int, words []uint64) (Kmer, error) {
	if length <= 0 {
		return Kmer{}, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if len(words) != WordCount(length) {
		return Kmer{}, fmt.Errorf("%w: %d bases need %d words, got %d",
			ErrInvalidLength, length, WordCount(length), len(words))
	}
	if words[0]&^topWordMask(length) != 0 {
		return Kmer{}, ErrDirtyPadding
	}
	w := make([]uint64, len(words))
	copy(w, words)
	return Kmer{length: length, words: w}, nil
}

// FromUint64 builds a k-mer of up to 32 bases from a right-aligned packed value.
func FromUint64(length int, v uint64) (Kmer, error) {
	if length > BasesPerWord {
		return Kmer{}, fmt.Errorf("%w: %d bases do not fit one word", ErrInvalidLength, length)
	}
	return FromWords(length, []uint64{v})
}

// FromBytes builds a k-mer from its big-endian packed byte form (see AppendBytes).
func FromBytes(length int, b []byte) (Kmer, error) {
	if length <= 0 {
		return Kmer{}, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	return fromBytes(length, b)
}

func fromBytes(length int, b []byte) (Kmer, error) {
	if len(b) != ByteCount(length) {
		return Kmer{}, fmt.Errorf("%w: %d bases need %d bytes, got %d",
			ErrInvalidLength, length, ByteCount(length), len(b))
	}
	k := Kmer{length: length, words: make([]uint64, WordCount(length))}
	nw := len(k.words)
	for i := range b {
		// Byte i counted from the least significant end.
		pos := 8 * (len(b) - 1 - i)
		v := uint64(b[i])
		k.words[nw-1-pos/64] |= v << (pos % 64)
	}
	if nw > 0 && k.words[0]&^topWordMask(length) != 0 {
		return Kmer{}, ErrDirtyPadding
	}
	return k, nil
}

// AppendBytes appends the big-endian packed form of k to dst: ByteCount(Len())
// bytes holding the 2L-bit integer. Byte-wise comparison of this form orders
// k-mers of equal length the same way Compare does.
func (k Kmer) AppendBytes(dst []byte) []byte {
	n := ByteCount(k.length)
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(k.bitsAt(8*i, 8)))
	}
	return dst
}

// Equal reports whether a and b have the same length and bases.
func Equal(a, b Kmer) bool {
	return Compare(a, b) == 0
}

// Compare orders k-mers. K-mers of equal length compare by their packed words,
// most significant first, which is the lexicographic order of their strings
// under A < C < G < T. K-mers of different lengths order by length.
func Compare(a, b Kmer) int {
	switch {
	case a.length < b.length:
		return -1
	case a.length > b.length:
		return 1
	}
	for i := range a.words {
		switch {
		case a.words[i] < b.words[i]:
			return -1
		case a.words[i] > b.words[i]:
			return 1
		}
	}
	return 0
}

// Split divides k at prefixBases: the leading bases are returned as a bin index
// and the remaining bases as a new k-mer. prefixBases must be in [0, min(Len, 32)].
// A suffix of zero bases is the zero Kmer.
func (k Kmer) Split(prefixBases int) (prefix uint64, suffix Kmer) {
	if prefixBases < 0 || prefixBases > k.length || prefixBases > BasesPerWord {
		panic(fmt.Sprintf("kmer: prefix of %d bases invalid for %d-mer", prefixBases, k.length))
	}
	suffixBases := k.length - prefixBases
	prefix = k.bitsAt(2*suffixBases, 2*prefixBases)
	if suffixBases == 0 {
		return prefix, Kmer{}
	}
	nw := WordCount(suffixBases)
	suffix = Kmer{length: suffixBases, words: make([]uint64, nw)}
	for j := range nw {
		width := min(64, 2*suffixBases-64*j)
		suffix.words[nw-1-j] = k.bitsAt(64*j, width)
	}
	return prefix, suffix
}

// Join is the inverse of Split: it places prefix (prefixBases bases) in front
// of suffix.
func Join(prefix uint64, prefixBases int, suffix Kmer) Kmer {
	length := prefixBases + suffix.length
	if prefixBases < 0 || prefixBases > BasesPerWord || length == 0 {
		panic(fmt.Sprintf("kmer: cannot join %d prefix bases", prefixBases))
	}
	out := Kmer{length: length, words: make([]uint64, WordCount(length))}
	// Copy suffix words into the least significant end.
	for j := range suffix.words {
		out.words[len(out.words)-1-j] = suffix.words[len(suffix.words)-1-j]
	}
	out.orBits(2*suffix.length, 2*prefixBases, prefix)
	return out
}

// bitsAt returns n (<= 64) bits starting at bit position pos counted from the
// least significant bit of the packed integer. Bits beyond the words read as 0.
func (k Kmer) bitsAt(pos, n int) uint64 {
	if n == 0 {
		return 0
	}
	nw := len(k.words)
	wi := pos / 64
	off := uint(pos % 64)
	var v uint64
	if wi < nw {
		v = k.words[nw-1-wi] >> off
	}
	if off != 0 && int(off)+n > 64 && wi+1 < nw {
		v |= k.words[nw-2-wi] << (64 - off)
	}
	if n < 64 {
		v &= (uint64(1) << uint(n)) - 1
	}
	return v
}

// orBits ORs the low n bits of v into the packed integer at bit position pos.
// Only used while constructing a value.
func (k *Kmer) orBits(pos, n int, v uint64) {
	if n == 0 {
		return
	}
	if n < 64 {
		v &= (uint64(1) << uint(n)) - 1
	}
	nw := len(k.words)
	wi := pos / 64
	off := uint(pos % 64)
	k.words[nw-1-wi] |= v << off
	if off != 0 && int(off)+n > 64 {
		k.words[nw-2-wi] |= v >> (64 - off)
	}
}

// topWordMask returns the mask of bits in use in the most significant word.
func topWordMask(length int) uint64 {
	used := 2 * (length - (WordCount(length)-1)*BasesPerWord)
	if used == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(used)) - 1
}
