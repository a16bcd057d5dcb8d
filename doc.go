/*
Package kmerdb provides random-access queries over k-mer counting databases.

A database stores, for every distinct canonical k-mer observed in a dataset,
the number of times it occurred. A k-mer and its reverse complement are the
same entry: queries canonicalize before searching, so CheckKmer returns the
same count for either strand.

# File layout

A database file holds a fixed-size header, a prefix lookup table mapping the
leading bases of a k-mer to a range of records, a page directory, the
records themselves (grouped into optionally compressed pages of sorted
suffix/counter pairs) and an optional Bloom filter. Every region is
protected by a checksum.

# Usage

	db, err := kmerdb.Open("reads.kdb", nil)
	if err != nil {
		return err
	}
	defer db.Close()

	count, found, err := db.CheckString("TAAGA")

Files are produced by DatabaseWriter from k-mers that were already counted,
canonicalized and sorted.

# Concurrency

A DB is safe for concurrent use by multiple goroutines. Close waits for
queries in flight; later queries fail with ErrClosed.

# Errors

Damaged data found while answering a query is fatal for the handle: the
error is reported through Logger.Fatalf and returned by every later query.
*/
package kmerdb
