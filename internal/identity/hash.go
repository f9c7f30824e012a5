package identity

// shardHash reproduces the cluster's pinned shard-assignment hash: a
// djb2-style accumulator walked back-to-front over the string's UTF-16
// code units, folded with h = (h*33) XOR code, then re-mixed by
// hashOptimize to smooth the high bit, and finally reduced by
// abs(h) mod numberOfShards. The algorithm is fixed by the design the
// whole cluster agrees on — every pod must derive the same ShardID from
// the same EntityID, so nothing here may change without a coordinated,
// version-bumped rollout.
func shardHash(s string, numberOfShards int) int {
	if numberOfShards <= 0 {
		return 0
	}

	h := djb2Reverse(s)
	h = hashOptimize(h)

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % int64(numberOfShards))
}

// djb2Reverse iterates s's UTF-16 code units from the last down to the
// first, starting from the conventional djb2 seed 5381, folding each unit
// in with h = (h*33) XOR code rather than djb2's usual addition.
func djb2Reverse(s string) int32 {
	units := utf16Units(s)

	var h int32 = 5381
	for i := len(units) - 1; i >= 0; i-- {
		h = (h * 33) ^ int32(units[i])
	}
	return h
}

// hashOptimize smooths the high bit of a djb2 output: it clears bit 30
// and replaces it with a copy of the sign bit (bit 31), so inputs
// differing only in their sign bit don't collapse onto the same shard
// range as inputs that merely flip bit 30.
func hashOptimize(n int32) int32 {
	u := uint32(n)
	cleared := u & 0xBFFFFFFF
	signBit := (u >> 1) & 0x40000000
	return int32(cleared | signBit)
}

// utf16Units encodes s as UTF-16 code units (surrogate pairs for
// characters outside the BMP), matching the code-unit iteration the
// reference hash performs over a native UTF-16 string.
func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r < 0x10000 {
			units = append(units, uint16(r))
			continue
		}
		r -= 0x10000
		hi := uint16(0xD800 + (r >> 10))
		lo := uint16(0xDC00 + (r & 0x3FF))
		units = append(units, hi, lo)
	}
	return units
}
