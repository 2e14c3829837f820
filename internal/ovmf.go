package internal

import (
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	ovmfTableFooterGUID   = "96b582de-1fb2-45f7-baea-a366c55a082d"
	bytesAfterTableFooter = 32
	// Each table entry ends with a 2 byte length of the entire entry
	// followed by a 16 byte GUID.
	ovmfTableEntryHeaderSize = 2 + GUIDSize

	// SevHashTableReservedGUID marks the area OVMF reserves for the SEV
	// kernel hashes table. Firmware without it ignores the table.
	SevHashTableReservedGUID = "7255371f-3a3b-4b04-927b-1da6efa8d454"
	sevSecretBlockGUID       = "4c2eb361-7d9b-4cc3-8081-127c90d3d294"
	sevEsResetBlockGUID      = "00f771de-1a7e-4fcb-890e-68c77e2fb44e"
	sevSnpMetadataGUID       = "dc886566-984a-4798-a75e-5585a7bf67cc"
	tdxMetadataOffsetGUID    = "e47a6535-984a-4798-865e-4685a7bf8ec2"
)

var ovmfTableNames = map[string]string{
	SevHashTableReservedGUID: "SEV hashes table",
	sevSecretBlockGUID:       "SEV secret block",
	sevEsResetBlockGUID:      "SEV-ES reset block",
	sevSnpMetadataGUID:       "SEV-SNP metadata",
	tdxMetadataOffsetGUID:    "TDX metadata offset",
}

// OvmfTableEntry is a single entry of the GUIDed table OVMF places right
// before the reset vector.
type OvmfTableEntry struct {
	GUID string
	Data []byte
}

// Name returns a human readable name for well-known entries, or "".
func (e OvmfTableEntry) Name() string {
	return ovmfTableNames[e.GUID]
}

// HashTableArea is the guest physical area reserved for the SEV hashes table.
type HashTableArea struct {
	Base uint32
	Size uint32
}

// ParseOvmfTable parses the OVMF footer table from the firmware blob. Entries
// are returned in firmware order. Firmware without a footer table yields no
// entries and no error.
func ParseOvmfTable(fw []byte) ([]OvmfTableEntry, error) {
	footerOffset := len(fw) - bytesAfterTableFooter - ovmfTableEntryHeaderSize
	if footerOffset < 0 {
		return nil, nil
	}

	footerGUID := encodeGUID(ovmfTableFooterGUID)
	if [GUIDSize]byte(fw[footerOffset+2:footerOffset+ovmfTableEntryHeaderSize]) != footerGUID {
		return nil, nil
	}

	// The footer length covers the whole table including the footer itself.
	tablesLen := int(binary.LittleEndian.Uint16(fw[footerOffset:footerOffset+2])) - ovmfTableEntryHeaderSize
	if tablesLen < 0 || tablesLen > footerOffset {
		return nil, fmt.Errorf("malformed OVMF table footer")
	}
	tables := fw[footerOffset-tablesLen : footerOffset]

	// Walk the table starting at the end.
	var entries []OvmfTableEntry
	offset := len(tables)
	for offset >= ovmfTableEntryHeaderSize {
		entryLen := int(binary.LittleEndian.Uint16(tables[offset-ovmfTableEntryHeaderSize : offset-GUIDSize]))
		if entryLen < ovmfTableEntryHeaderSize || entryLen > offset {
			return nil, fmt.Errorf("malformed OVMF table in firmware at offset %d", offset)
		}

		entries = append(entries, OvmfTableEntry{
			GUID: decodeGUID([GUIDSize]byte(tables[offset-GUIDSize : offset])),
			Data: tables[offset-entryLen : offset-ovmfTableEntryHeaderSize],
		})
		offset -= entryLen
	}

	slices.Reverse(entries)
	return entries, nil
}

// FindSevHashTableArea looks up the SEV hashes table reservation in the
// firmware's OVMF table.
func FindSevHashTableArea(fw []byte) (HashTableArea, bool, error) {
	entries, err := ParseOvmfTable(fw)
	if err != nil {
		return HashTableArea{}, false, err
	}

	for _, e := range entries {
		if e.GUID != SevHashTableReservedGUID {
			continue
		}
		if len(e.Data) < 8 {
			return HashTableArea{}, false, fmt.Errorf("malformed SEV hashes table entry: %d bytes", len(e.Data))
		}
		return HashTableArea{
			Base: binary.LittleEndian.Uint32(e.Data[0:4]),
			Size: binary.LittleEndian.Uint32(e.Data[4:8]),
		}, true, nil
	}
	return HashTableArea{}, false, nil
}
