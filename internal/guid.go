package internal

import (
	"bytes"
	"encoding/binary"

	"github.com/foxboron/go-uefi/efi/util"
	"github.com/google/uuid"
)

// GUIDSize is the size of an encoded EFI GUID.
const GUIDSize = 16

// encodeGUID encodes an UEFI GUID into binary form. The first three fields are
// little-endian, the last eight bytes are kept in string order.
func encodeGUID(guid string) [GUIDSize]byte {
	u := uuid.MustParse(guid)
	efiGUID := util.EFIGUID{
		Data1: binary.BigEndian.Uint32(u[0:4]),
		Data2: binary.BigEndian.Uint16(u[4:6]),
		Data3: binary.BigEndian.Uint16(u[6:8]),
	}
	copy(efiGUID.Data4[:], u[8:16])

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, efiGUID)

	var out [GUIDSize]byte
	copy(out[:], buf.Bytes())
	return out
}

// decodeGUID is the inverse of encodeGUID.
func decodeGUID(raw [GUIDSize]byte) string {
	var efiGUID util.EFIGUID
	_ = binary.Read(bytes.NewReader(raw[:]), binary.LittleEndian, &efiGUID)

	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], efiGUID.Data1)
	binary.BigEndian.PutUint16(u[4:6], efiGUID.Data2)
	binary.BigEndian.PutUint16(u[6:8], efiGUID.Data3)
	copy(u[8:16], efiGUID.Data4[:])
	return u.String()
}
