package kmer

import (
	"fmt"
	"math/bits"
	"strings"
)

// Alphabet lists the bases in code order.
const Alphabet = "ACGT"

// invalidCode marks bytes outside the alphabet in codeOf.
const invalidCode = 0xFF

var codeOf [256]byte

func init() {
	for i := range codeOf {
		codeOf[i] = invalidCode
	}
	for code, b := range []byte(Alphabet) {
		codeOf[b] = byte(code)
	}
}

// Code returns the 2-bit code of base b and whether b is in the alphabet.
func Code(b byte) (byte, bool) {
	c := codeOf[b]
	return c, c != invalidCode
}

// FoldBases returns s with soft-masked bases a, c, g and t in uppercase.
// Other bytes are kept. s is returned as is when it has no lowercase base.
func FoldBases(s string) string {
	i := strings.IndexAny(s, "acgt")
	if i < 0 {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		switch b[i] {
		case 'a', 'c', 'g', 't':
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

// Encode packs an uppercase nucleotide string.
func Encode(s string) (Kmer, error) {
	if len(s) == 0 {
		return Kmer{}, ErrEmptyInput
	}
	k := Kmer{length: len(s), words: make([]uint64, WordCount(len(s)))}
	for i := 0; i < len(s); i++ {
		c := codeOf[s[i]]
		if c == invalidCode {
			return Kmer{}, fmt.Errorf("%w: %q at position %d", ErrInvalidAlphabet, s[i], i)
		}
		k.orBits(2*(len(s)-1-i), 2, uint64(c))
	}
	return k, nil
}

// MustEncode is Encode that panics on error. Intended for constants and tests.
func MustEncode(s string) Kmer {
	k, err := Encode(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Decode returns the nucleotide string of k.
func Decode(k Kmer) string {
	var sb strings.Builder
	sb.Grow(k.length)
	for i := range k.length {
		sb.WriteByte(Alphabet[k.Base(i)])
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (k Kmer) String() string {
	return Decode(k)
}

// ReverseComplement returns the k-mer read from the opposite strand: base order
// reversed and every base complemented.
//
// The whole W-word value is complemented, the 2-bit groups are reversed across
// all 64W bits (reverse each word, reverse the word order), and the result is
// shifted right by 64W-2L bits. The shift drops the complemented padding bits,
// which the reversal moved to the bottom, and brings zeros in at the top.
func ReverseComplement(k Kmer) Kmer {
	nw := len(k.words)
	out := Kmer{length: k.length, words: make([]uint64, nw)}
	for i, w := range k.words {
		out.words[nw-1-i] = reverseBases(^w)
	}
	shiftRight(out.words, uint(64*nw-2*k.length))
	return out
}

// Canonical returns the smaller of k and its reverse complement. A palindromic
// k-mer is returned unchanged.
func Canonical(k Kmer) Kmer {
	rc := ReverseComplement(k)
	if Compare(rc, k) < 0 {
		return rc
	}
	return k
}

// IsCanonical reports whether k is its own canonical form.
func IsCanonical(k Kmer) bool {
	return Compare(k, ReverseComplement(k)) <= 0
}

// reverseBases reverses the order of the 32 2-bit groups of w.
func reverseBases(w uint64) uint64 {
	w = (w>>2)&0x3333333333333333 | (w&0x3333333333333333)<<2
	w = (w>>4)&0x0F0F0F0F0F0F0F0F | (w&0x0F0F0F0F0F0F0F0F)<<4
	return bits.ReverseBytes64(w)
}

// shiftRight shifts a most-significant-first multi-word value right by s < 64 bits.
func shiftRight(words []uint64, s uint) {
	if s == 0 {
		return
	}
	for i := len(words) - 1; i >= 0; i-- {
		v := words[i] >> s
		if i > 0 {
			v |= words[i-1] << (64 - s)
		}
		words[i] = v
	}
}
