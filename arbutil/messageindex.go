// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package arbutil

// MessageIndex is the position of a message in the sequencer feed.
type MessageIndex uint64

// Next returns the index expected to follow idx on a healthy feed.
func (idx MessageIndex) Next() MessageIndex {
	return idx + 1
}
