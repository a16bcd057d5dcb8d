package kmerdb

import "github.com/aalhour/kmerdb/internal/kmer"

// Kmer is a packed k-mer: 2 bits per base, right-aligned in 64-bit words,
// most significant word first. Kmer values are immutable.
type Kmer = kmer.Kmer

// Encode packs an uppercase nucleotide string. It fails with ErrEmptyInput
// or ErrInvalidAlphabet.
func Encode(s string) (Kmer, error) {
	return kmer.Encode(s)
}

// MustEncode is Encode that panics on error.
func MustEncode(s string) Kmer {
	return kmer.MustEncode(s)
}

// Decode returns the nucleotide string of k.
func Decode(k Kmer) string {
	return kmer.Decode(k)
}

// ReverseComplement returns k read from the opposite strand.
func ReverseComplement(k Kmer) Kmer {
	return kmer.ReverseComplement(k)
}

// Canonical returns the smaller of k and its reverse complement.
func Canonical(k Kmer) Kmer {
	return kmer.Canonical(k)
}

// FromWords builds a k-mer of length bases from packed words.
func FromWords(length int, words []uint64) (Kmer, error) {
	return kmer.FromWords(length, words)
}

// FromUint64 builds a k-mer of at most 32 bases from a packed value.
func FromUint64(length int, v uint64) (Kmer, error) {
	return kmer.FromUint64(length, v)
}

// Compare orders k-mers of equal length lexicographically (A < C < G < T).
func Compare(a, b Kmer) int {
	return kmer.Compare(a, b)
}
