package pmu

import "encoding/binary"

// writeHeader serializes h into buf[0:headerSize]. Called once when a
// buffer is mapped, and again (implicitly, via field updates) whenever
// flags or captureEnd change.
func writeHeader(buf []byte, h bufferHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.version)
	binary.LittleEndian.PutUint32(buf[4:8], h.arch)
	binary.LittleEndian.PutUint32(buf[8:12], h.flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.reserved)
	binary.LittleEndian.PutUint64(buf[16:24], h.ticksPerSecond)
	binary.LittleEndian.PutUint64(buf[24:32], h.captureEnd)
}

// readHeader deserializes buf[0:headerSize] into a bufferHeader.
func readHeader(buf []byte) bufferHeader {
	return bufferHeader{
		version:        binary.LittleEndian.Uint32(buf[0:4]),
		arch:           binary.LittleEndian.Uint32(buf[4:8]),
		flags:          binary.LittleEndian.Uint32(buf[8:12]),
		reserved:       binary.LittleEndian.Uint32(buf[12:16]),
		ticksPerSecond: binary.LittleEndian.Uint64(buf[16:24]),
		captureEnd:     binary.LittleEndian.Uint64(buf[24:32]),
	}
}

func setHeaderFlags(buf []byte, flags uint32) {
	binary.LittleEndian.PutUint32(buf[8:12], flags)
}

func setHeaderCaptureEnd(buf []byte, captureEnd uint64) {
	binary.LittleEndian.PutUint64(buf[24:32], captureEnd)
}

// writeRecordHeader fills the common {type, reserved_flags, event,
// reserved, time} prefix shared by every record variant.
func writeRecordHeader(buf []byte, cursor int, typ uint8, event EventID, time uint64) {
	buf[cursor+0] = typ
	buf[cursor+1] = 0 // reserved_flags
	binary.LittleEndian.PutUint16(buf[cursor+2:cursor+4], uint16(event))
	binary.LittleEndian.PutUint32(buf[cursor+4:cursor+8], 0) // reserved
	binary.LittleEndian.PutUint64(buf[cursor+8:cursor+16], time)
}

// writeTickRecord encodes a tick record at cursor and returns the cursor
// advanced past it.
func writeTickRecord(buf []byte, cursor int, event EventID, time uint64) int {
	writeRecordHeader(buf, cursor, RecordTick, event, time)
	return cursor + tickRecordSize
}

// writeValueRecord encodes a value record at cursor and returns the cursor
// advanced past it.
func writeValueRecord(buf []byte, cursor int, event EventID, time uint64, value uint64) int {
	writeRecordHeader(buf, cursor, RecordValue, event, time)
	binary.LittleEndian.PutUint64(buf[cursor+recordHeaderSize:cursor+recordHeaderSize+8], value)
	return cursor + valueRecordSize
}

// writePCRecord encodes a pc record at cursor and returns the cursor
// advanced past it.
func writePCRecord(buf []byte, cursor int, event EventID, time uint64, aspace, pc uint64) int {
	writeRecordHeader(buf, cursor, RecordPC, event, time)
	binary.LittleEndian.PutUint64(buf[cursor+recordHeaderSize:cursor+recordHeaderSize+8], aspace)
	binary.LittleEndian.PutUint64(buf[cursor+recordHeaderSize+8:cursor+recordHeaderSize+16], pc)
	return cursor + pcRecordSize
}

// Record is a decoded view of one buffer record, used by tests and by the
// cmd/ipmctl demo to print what a session captured. It is not used by the
// hot PMI path, which writes bytes directly.
type Record struct {
	Type  uint8
	Event EventID
	Time  uint64
	Value uint64 // valid for RecordValue
	ASpace uint64 // valid for RecordPC
	PC     uint64 // valid for RecordPC
}

// DecodeRecords walks every record between offset headerSize and
// header.captureEnd in buf, returning them in encounter order. It is a
// read-only, user-space-side helper: the kernel-side PMI handler never
// reads its own output back.
func DecodeRecords(buf []byte) []Record {
	h := readHeader(buf)
	var records []Record
	cursor := headerSize
	for uint64(cursor) < h.captureEnd {
		typ := buf[cursor]
		event := EventID(binary.LittleEndian.Uint16(buf[cursor+2 : cursor+4]))
		time := binary.LittleEndian.Uint64(buf[cursor+8 : cursor+16])
		r := Record{Type: typ, Event: event, Time: time}
		switch typ {
		case RecordTick:
			cursor += tickRecordSize
		case RecordValue:
			r.Value = binary.LittleEndian.Uint64(buf[cursor+recordHeaderSize : cursor+recordHeaderSize+8])
			cursor += valueRecordSize
		case RecordPC:
			r.ASpace = binary.LittleEndian.Uint64(buf[cursor+recordHeaderSize : cursor+recordHeaderSize+8])
			r.PC = binary.LittleEndian.Uint64(buf[cursor+recordHeaderSize+8 : cursor+recordHeaderSize+16])
			cursor += pcRecordSize
		default:
			return records
		}
		records = append(records, r)
	}
	return records
}
