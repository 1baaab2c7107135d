package sbe

// TemplateMDIncrementalRefreshBook is the template id for the market-data
// incremental refresh message used throughout the scenarios in spec.md §8.
const TemplateMDIncrementalRefreshBook uint16 = 2

// MDEntryType distinguishes book side within a repeating group entry.
type MDEntryType uint8

const (
	MDEntryBid MDEntryType = 0
	MDEntryAsk MDEntryType = 1
)

// MDEntry is one decoded repeating-group entry: side, optional price,
// optional size.
type MDEntry struct {
	Type  MDEntryType
	Price OptionalDecimal64
	Size  int32
}

// MarketDataIncrementalRefresh is the decoded view of template 2: a
// transact_time root-block field plus a repeating group of book-level
// updates. Each entry's Price/Size is copied out of the frame into the
// Entries slice (the only allocation), so the message does not reference
// the frame buffer after decoding.
type MarketDataIncrementalRefresh struct {
	Header       Header
	TransactTime uint64
	Entries      []MDEntry
}

// DecodeMarketDataIncrementalRefresh decodes a template-2 frame: header,
// root block (TransactTime), then the repeating group of MDEntry values.
// Bounds violations abort immediately with no partial message returned
// (spec.md §4.6).
func DecodeMarketDataIncrementalRefresh(frame []byte) (MarketDataIncrementalRefresh, error) {
	d := NewDecoder(frame)
	h, err := d.DecodeHeader()
	if err != nil {
		return MarketDataIncrementalRefresh{}, err
	}
	if h.TemplateID != TemplateMDIncrementalRefreshBook {
		return MarketDataIncrementalRefresh{}, ErrUnknownTemplate
	}

	rootStart := d.Offset()
	transactTime, err := d.ReadU64()
	if err != nil {
		return MarketDataIncrementalRefresh{}, err
	}
	if err := d.SeekRootBlockEnd(rootStart, h.BlockLength); err != nil {
		return MarketDataIncrementalRefresh{}, err
	}

	gh, err := d.DecodeGroupHeader()
	if err != nil {
		return MarketDataIncrementalRefresh{}, err
	}

	entries := make([]MDEntry, 0, gh.NumInGroup)
	for i := uint16(0); i < gh.NumInGroup; i++ {
		entryDec, err := d.Entry(gh)
		if err != nil {
			return MarketDataIncrementalRefresh{}, err
		}
		entryType, err := entryDec.ReadU8()
		if err != nil {
			return MarketDataIncrementalRefresh{}, err
		}
		price, err := entryDec.ReadDecimal64()
		if err != nil {
			return MarketDataIncrementalRefresh{}, err
		}
		size, err := entryDec.ReadI32()
		if err != nil {
			return MarketDataIncrementalRefresh{}, err
		}
		entries = append(entries, MDEntry{Type: MDEntryType(entryType), Price: price, Size: size})
	}

	return MarketDataIncrementalRefresh{Header: h, TransactTime: transactTime, Entries: entries}, nil
}

// EncodeMarketDataIncrementalRefresh is the decoder's dual, used by the
// tests. entryBlockLength must be large
// enough to hold MDEntryType(1)+Decimal64(9)+Size(4)=14 bytes per entry;
// any extra is left zeroed, matching how real SBE schemas often reserve
// room for future extension fields within a fixed block_length.
func EncodeMarketDataIncrementalRefresh(buf []byte, schemaID, version uint16, transactTime uint64, entryBlockLength uint16, entries []MDEntry) (int, error) {
	e := NewEncoder(buf)
	rootBlockLength := uint16(8) // TransactTime only
	if err := e.WriteHeader(rootBlockLength, TemplateMDIncrementalRefreshBook, schemaID, version); err != nil {
		return 0, err
	}
	if err := e.WriteU64(transactTime); err != nil {
		return 0, err
	}
	if err := e.WriteGroupHeader(entryBlockLength, uint16(len(entries))); err != nil {
		return 0, err
	}
	for _, entry := range entries {
		start := e.Offset()
		if err := e.WriteU8(uint8(entry.Type)); err != nil {
			return 0, err
		}
		if entry.Price.Present {
			if err := e.WriteDecimal64Raw(entry.Price.Value.Mantissa, entry.Price.Value.Exponent); err != nil {
				return 0, err
			}
		} else {
			if err := e.WriteDecimal64Null(); err != nil {
				return 0, err
			}
		}
		if err := e.WriteI32(entry.Size); err != nil {
			return 0, err
		}
		written := e.Offset() - start
		if pad := int(entryBlockLength) - written; pad > 0 {
			for i := 0; i < pad; i++ {
				if err := e.WriteU8(0); err != nil {
					return 0, err
				}
			}
		}
	}
	return e.Offset(), nil
}
