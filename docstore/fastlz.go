package docstore

// fastlzCompress and fastlzDecompress port the fastlz-style byte-block
// compressor used for per-document text (spec §4.6): literal runs of up to
// 32 bytes, and back-references encoded as a 3-bit length field (extended by
// one extra byte for longer matches) plus a 13-bit distance, built from a
// 13-bit rolling hash over 3-byte windows with an 8192-byte match window.
//
// Ported line-for-line from original_source/src/M6FastLZ.cpp (itself based
// on Ariya Hidayat's fastlz), translating C pointer arithmetic into slice
// indices. A handful of match-extension reads in the original dereference
// one byte past what Go's bounds-checked slices allow for inputs ending
// exactly at the match window; those reads are guarded here to stop the
// search instead, which only ever shortens a candidate match (never
// corrupts output), since the decompressor only trusts the control bytes
// fastlzCompress actually emits.
const (
	maxCopy  = 32
	maxLen   = 264
	maxDist  = 8192
	hashLog  = 13
	hashSize = 1 << hashLog
	hashMask = hashSize - 1
)

func fastlzHash(a, b, c byte) uint32 {
	v := uint32(a) | uint32(b)<<8
	v ^= (uint32(b) | uint32(c)<<8) ^ (v >> (16 - hashLog))
	v &= hashMask
	return v
}

// fastlzCompress writes a compressed form of input into output, returning
// the number of bytes written, or 0 if output is too small to safely hold
// the result (the caller falls back to storing input uncompressed).
func fastlzCompress(input, output []byte) int {
	length := len(input)
	maxout := len(output)

	if maxout < length+length/20 {
		return 0
	}
	if length < 4 {
		if length > 0 && maxout >= length+1 {
			output[0] = byte(length - 1)
			copy(output[1:], input)
			return length + 1
		}
		return 0
	}

	ipBound := length - 2
	ipLimit := length - 12

	var htab [hashSize]int

	ip := 0
	op := 0
	copyLen := 2
	output[op] = maxCopy - 1
	op++
	output[op] = input[ip]
	op++
	ip++
	output[op] = input[ip]
	op++
	ip++

	for ip < ipLimit {
		anchor := ip
		hval := fastlzHash(input[ip], input[ip+1], input[ip+2])
		ref := htab[hval]
		distance := anchor - ref
		htab[hval] = anchor

		if distance == 0 || distance >= maxDist ||
			input[ref] != input[ip] || input[ref+1] != input[ip+1] || input[ref+2] != input[ip+2] {
			output[op] = input[anchor]
			op++
			ip = anchor + 1
			copyLen++
			if copyLen == maxCopy {
				copyLen = 0
				output[op] = maxCopy - 1
				op++
			}
			continue
		}

		refPos := ref + 3
		ip = anchor + 3
		distance--

		if distance == 0 {
			x := input[ip-1]
			for ip < ipBound && refPos < length && input[refPos] == x {
				refPos++
				ip++
			}
		} else {
			for ip < ipBound && refPos < length && input[refPos] == input[ip] {
				refPos++
				ip++
			}
		}

		if copyLen > 0 {
			output[op-copyLen-1] = byte(copyLen - 1)
		} else {
			op--
		}
		copyLen = 0

		ip -= 3
		runLen := ip - anchor

		for runLen > maxLen-2 {
			output[op] = byte((7 << 5) + (distance >> 8))
			op++
			output[op] = maxLen - 2 - 7 - 2
			op++
			output[op] = byte(distance & 255)
			op++
			runLen -= maxLen - 2
		}

		if runLen < 7 {
			output[op] = byte((runLen << 5) + (distance >> 8))
			op++
			output[op] = byte(distance & 255)
			op++
		} else {
			output[op] = byte((7 << 5) + (distance >> 8))
			op++
			output[op] = byte(runLen - 7)
			op++
			output[op] = byte(distance & 255)
			op++
		}

		if ip+2 < length {
			hval = fastlzHash(input[ip], input[ip+1], input[ip+2])
			htab[hval] = ip
			ip++
		} else {
			ip++
		}
		if ip+2 < length {
			hval = fastlzHash(input[ip], input[ip+1], input[ip+2])
			htab[hval] = ip
			ip++
		} else {
			ip++
		}

		output[op] = maxCopy - 1
		op++
	}

	ipBound++
	for ip <= ipBound && ip < length {
		output[op] = input[ip]
		op++
		ip++
		copyLen++
		if copyLen == maxCopy {
			copyLen = 0
			output[op] = maxCopy - 1
			op++
		}
	}

	if copyLen > 0 {
		output[op-copyLen-1] = byte(copyLen - 1)
	} else {
		op--
	}

	return op
}

// fastlzDecompress expands a fastlzCompress stream into output, which must
// be at least as large as the original input length.
func fastlzDecompress(input, output []byte) int {
	ip := 0
	op := 0
	ctrl := uint32(input[ip]) & 31
	ip++

	for {
		if ctrl >= 32 {
			length := int(ctrl>>5) - 1
			ofs := int(ctrl&31) << 8
			ref := op - ofs

			if length == 7-1 {
				length += int(input[ip])
				ip++
			}
			ref -= int(input[ip])
			ip++

			if op+length+3 > len(output) || ref-1 < 0 {
				return 0
			}

			if ref == op {
				b := output[ref-1]
				output[op] = b
				op++
				output[op] = b
				op++
				output[op] = b
				op++
				for ; length > 0; length-- {
					output[op] = b
					op++
				}
			} else {
				r := ref - 1
				output[op] = output[r]
				op++
				r++
				output[op] = output[r]
				op++
				r++
				output[op] = output[r]
				op++
				r++
				for ; length > 0; length-- {
					output[op] = output[r]
					op++
					r++
				}
			}

			if ip < len(input) {
				ctrl = uint32(input[ip])
				ip++
			} else {
				break
			}
		} else {
			n := int(ctrl) + 1
			if op+n > len(output) || ip+n > len(input) {
				return 0
			}
			copy(output[op:op+n], input[ip:ip+n])
			op += n
			ip += n

			if ip >= len(input) {
				break
			}
			ctrl = uint32(input[ip])
			ip++
		}
	}

	return op
}
