package internal

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// DigestSize is the size of the launch digest (GCTX.LD).
const DigestSize = sha256.Size

// These must be identical to the definitions in QEMU target/i386/sev.c.
const (
	sevHashTableHeaderGUID = "9438d606-4f22-4cc9-b479-a793d411fd21"
	sevKernelEntryGUID     = "4de79437-abd2-427f-b835-d5b172d2045b"
	sevInitrdEntryGUID     = "44baf731-3a2f-4bd7-9af1-41e29169781d"
	sevCmdlineEntryGUID    = "97d02dd8-bd20-4c94-aa78-e7714d36ab2a"
)

type sevHashTableEntry struct {
	guid   [GUIDSize]byte
	length uint16
	hash   [sha256.Size]byte
}

type sevHashTable struct {
	guid    [GUIDSize]byte
	length  uint16
	cmdline sevHashTableEntry
	initrd  sevHashTableEntry
	kernel  sevHashTableEntry
}

// QEMU pads the table to a multiple of 16 bytes before it is measured.
type paddedSevHashTable struct {
	table   sevHashTable
	padding [8]byte
}

// PaddedSevHashTableSize is the number of bytes the hashes table adds to the
// measured launch data.
var PaddedSevHashTableSize = binary.Size(paddedSevHashTable{})

// measureKernelCmdline hashes the kernel cmdline the way QEMU passes it to
// the guest, NUL terminated.
func measureKernelCmdline(cmdline string) [sha256.Size]byte {
	return sha256.Sum256(append([]byte(cmdline), 0x00))
}

func newSevHashTableEntry(guid string, hash [sha256.Size]byte) sevHashTableEntry {
	return sevHashTableEntry{
		guid:   encodeGUID(guid),
		length: uint16(binary.Size(sevHashTableEntry{})),
		hash:   hash,
	}
}

// constructSevHashesTable builds the padded SEV hashes table for direct
// kernel boot. All fields are little-endian and packed.
func constructSevHashesTable(kernel, initrd []byte, cmdline string) ([]byte, error) {
	ht := paddedSevHashTable{
		table: sevHashTable{
			guid:    encodeGUID(sevHashTableHeaderGUID),
			length:  uint16(binary.Size(sevHashTable{})),
			cmdline: newSevHashTableEntry(sevCmdlineEntryGUID, measureKernelCmdline(cmdline)),
			initrd:  newSevHashTableEntry(sevInitrdEntryGUID, sha256.Sum256(initrd)),
			kernel:  newSevHashTableEntry(sevKernelEntryGUID, sha256.Sum256(kernel)),
		},
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, ht); err != nil {
		return nil, fmt.Errorf("failed to encode SEV hashes table: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildLaunchDigest computes the SEV launch digest (GCTX.LD) of the firmware
// image. If any of kernel, initrd or cmdline is present the SEV hashes table is
// measured right after the firmware. An absent initrd hashes as empty and an
// absent cmdline as the empty string.
func BuildLaunchDigest(firmware Optional[[]byte], kernel, initrd Optional[[]byte], cmdline Optional[string]) ([DigestSize]byte, error) {
	var ld [DigestSize]byte

	fw, ok := firmware.Get()
	if !ok {
		return ld, inputError("firmware", ErrImageRead)
	}

	h := sha256.New()
	_, _ = h.Write(fw)

	if kernel.Present() || initrd.Present() || cmdline.Present() {
		kernelData, ok := kernel.Get()
		if !ok {
			return ld, inputError("kernel", fmt.Errorf("%w: kernel required when initrd or cmdline is provided", ErrInputValidation))
		}
		initrdData, _ := initrd.Get()
		cmdlineText, _ := cmdline.Get()

		ht, err := constructSevHashesTable(kernelData, initrdData, cmdlineText)
		if err != nil {
			return ld, err
		}
		_, _ = h.Write(ht)
	}

	copy(ld[:], h.Sum(nil))
	return ld, nil
}
