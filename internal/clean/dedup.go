package clean

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"flightetl/internal/flight"
)

// rowHash fingerprints the flight identity tuple (date, carrier, number,
// airports, scheduled departure) for in-batch duplicate detection. A 64-bit
// hash over a 100k-row window makes an accidental collision vanishingly
// unlikely; cross-batch duplicates are out of scope because a run-wide seen
// set would grow with row count, not batch size.
func (c *Cleaner) rowHash(b *flight.Batch, i int) uint64 {
	buf := c.hashBuf[:0]
	buf = binary.LittleEndian.AppendUint16(buf, uint16(b.Year[i]))
	buf = append(buf, byte(b.Month[i]), byte(b.Day[i]))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(b.FlightNumber[i]))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(b.SchedDep[i]))
	buf = append(buf, b.Airline[i]...)
	buf = append(buf, 0xFF)
	buf = append(buf, b.Origin[i]...)
	buf = append(buf, 0xFF)
	buf = append(buf, b.Dest[i]...)
	c.hashBuf = buf
	return xxh3.Hash(buf)
}
