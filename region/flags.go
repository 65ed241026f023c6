package region

import (
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// MemFlags alter how a durable copy lands in the backing memory.
type MemFlags uint32

const (
	// MemNonTemporal requests that the copy bypass the CPU cache so the data
	// reaches persistent media without a separate flush.
	MemNonTemporal MemFlags = 1 << iota
	// MemTemporal requests a cached copy followed by an explicit flush.
	MemTemporal
	// MemNoFlush skips flushing after the copy; the caller takes
	// responsibility for durability.
	MemNoFlush
	// MemNoDrain skips the final drain of store buffers. Useful when issuing
	// several copies back to back and draining once at the end.
	MemNoDrain
)

const memFlagsAll = MemNonTemporal | MemTemporal | MemNoFlush | MemNoDrain

var memFlagNames = map[MemFlags]string{
	MemNonTemporal: "MemNonTemporal",
	MemTemporal:    "MemTemporal",
	MemNoFlush:     "MemNoFlush",
	MemNoDrain:     "MemNoDrain",
}

// BadFlagsError is the error returned from MemFlags.Validate when the flag
// word contains unknown bits or contradictory hints.
var BadFlagsError error = errors.New("invalid memory flags")

// Validate returns an error if the flag word is not a combination a Region
// can honor.
func (f MemFlags) Validate() error {
	if f&^memFlagsAll != 0 {
		return cerrors.Wrapf(BadFlagsError, "unknown flag bits 0x%x", uint32(f&^memFlagsAll))
	}
	if f&MemNonTemporal != 0 && f&MemTemporal != 0 {
		return cerrors.Wrap(BadFlagsError, "MemNonTemporal and MemTemporal are mutually exclusive")
	}
	return nil
}

func (f MemFlags) String() string {
	if f == 0 {
		return "0"
	}

	var sb strings.Builder
	for bit := MemFlags(1); bit <= memFlagsAll; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		if name, ok := memFlagNames[bit]; ok {
			sb.WriteString(name)
		} else {
			sb.WriteString("UnknownMemFlag")
		}
	}
	return sb.String()
}
