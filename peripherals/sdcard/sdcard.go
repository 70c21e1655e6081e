// Package sdcard implements the SPI-mode SD card driver from
// original_source/SD_driver/SD_driver.c: the CMD0/CMD8/ACMD41 power-up
// negotiation (SD_init) and single-block read/write (SD_readSingleBlock,
// SD_writeSingleBlock), built on a byte-at-a-time Transport in the same
// style as this repo's shim.go SPI interface in place of the original's
// nrf_drv_spi calls.
package sdcard

import (
	"encoding/binary"
	"errors"
)

// BlockLen is SD_BLOCK_LEN: the fixed block size every read/write operates
// on.
const BlockLen = 512

// Command indices used by Init/ReadBlock/WriteBlock (CMD0, CMD8, CMD55,
// ACMD41, CMD17, CMD24 in SD_driver.c).
const (
	cmdGoIdle        = 0
	cmdSendIfCond    = 8
	cmdApp           = 55
	cmdSendOpCond    = 41
	cmdReadBlock     = 17
	cmdWriteBlock    = 24
	argSendIfCond    = 0x000001AA
	argSendOpCondHCS = 0x40000000
)

var (
	// ErrNoCard is returned by Init when the card never leaves busy/idle
	// after the attempt ceiling (cmdAttempts > 50 in SD_goIdleState's
	// retry loop).
	ErrNoCard = errors.New("sdcard: no card detected")
	// ErrInitTimeout covers both the ACMD41 polling ceiling
	// (cmdAttempts > 100) and the interface-condition echo-pattern
	// mismatch (SD_sendIfCond's check of res[4] != 0xAA).
	ErrInitTimeout = errors.New("sdcard: initialization timed out")
	// ErrDataToken is returned by ReadBlock/WriteBlock when the card
	// replies with an error data-response token instead of 0xFE/0x05.
	ErrDataToken = errors.New("sdcard: card returned an error token")
)

const maxGoIdleAttempts = 50
const maxOpCondAttempts = 100

// Transport is one SPI byte exchange with the card (SPI_transfer): send out
// while simultaneously reading in (full duplex, as every SD SPI byte is).
// CS assertion is the caller's responsibility, exactly as SD_driver.c's
// CS_PIN GPIO calls bracket each command around the raw SPI_transfer calls.
type Transport interface {
	Transfer(out uint8) (in uint8)
}

// Card is one SD card in SPI mode. HighCapacity is set by a successful Init,
// which sends ACMD41 with the HCS bit and does not read the OCR, so it does
// not tell an SDSC card from an SDHC/SDXC one. This package always treats
// ReadBlock/WriteBlock's addr as a block index, matching CMD17/CMD24 on an
// SDHC card.
type Card struct {
	xport        Transport
	HighCapacity bool
}

// New creates a Card bound to a Transport.
func New(xport Transport) *Card {
	return &Card{xport: xport}
}

func (c *Card) xferByte(b uint8) uint8 { return c.xport.Transfer(b) }

func (c *Card) xferIdle() uint8 { return c.xferByte(0xFF) }

// sendCommand is SD_command: a 6-byte command frame (start bit, command
// index, 4-byte argument, CRC, stop bit), every byte clocked out while
// discarding the simultaneous input.
func (c *Card) sendCommand(cmd uint8, arg uint32, crc uint8) {
	c.xferByte(0x40 | cmd)
	var argBytes [4]byte
	binary.BigEndian.PutUint32(argBytes[:], arg)
	for _, b := range argBytes {
		c.xferByte(b)
	}
	c.xferByte(crc | 0x01)
}

// readR1 is SD_readRes1: clock idle bytes until the card responds with an
// R1 byte whose MSB is clear (not 0xFF).
func (c *Card) readR1() uint8 {
	for i := 0; i < 8; i++ {
		if r1 := c.xferIdle(); r1 != 0xFF {
			return r1
		}
	}
	return 0xFF
}

// Init performs the power-up negotiation (SD_init): 80 idle clocks
// (SD_powerUpSeq), CMD0 until the card answers idle (R1 == 0x01), CMD8 with
// the standard voltage/check-pattern argument, then CMD55+ACMD41 until the
// card leaves idle, followed by an OCR probe is intentionally omitted here
// since this package has no CMD58 caller needs (HighCapacity is instead
// inferred from ACMD41's HCS argument, the same bit SD_sendOpCond sets
// unconditionally).
func (c *Card) Init() error {
	for i := 0; i < 10; i++ {
		c.xferIdle()
	}

	var r1 uint8
	for attempt := 0; ; attempt++ {
		c.sendCommand(cmdGoIdle, 0, 0x94)
		r1 = c.readR1()
		if r1 == 0x01 {
			break
		}
		if attempt >= maxGoIdleAttempts {
			return ErrNoCard
		}
	}

	c.sendCommand(cmdSendIfCond, argSendIfCond, 0x86)
	r1 = c.readR1()
	if r1 != 0x01 {
		return ErrInitTimeout
	}
	var ifCondRes [4]byte
	for i := range ifCondRes {
		ifCondRes[i] = c.xferIdle()
	}
	if ifCondRes[3] != 0xAA {
		return ErrInitTimeout
	}

	for attempt := 0; ; attempt++ {
		if attempt > maxOpCondAttempts {
			return ErrInitTimeout
		}
		c.sendCommand(cmdApp, 0, 0x00)
		if c.readR1() >= 2 {
			continue
		}
		c.sendCommand(cmdSendOpCond, argSendOpCondHCS, 0x00)
		r1 = c.readR1()
		if r1 == 0x00 {
			break
		}
	}
	c.HighCapacity = true
	return nil
}

// ReadBlock reads one BlockLen-byte block (SD_readSingleBlock): send CMD17,
// wait for the data token (0xFE), then clock BlockLen data bytes plus a
// 2-byte CRC that is discarded.
func (c *Card) ReadBlock(addr uint32) ([]byte, error) {
	c.sendCommand(cmdReadBlock, addr, 0x95)
	if r1 := c.readR1(); r1 != 0x00 {
		return nil, ErrDataToken
	}

	var token uint8
	for i := 0; i < 1000; i++ {
		token = c.xferIdle()
		if token != 0xFF {
			break
		}
	}
	if token != 0xFE {
		return nil, ErrDataToken
	}

	buf := make([]byte, BlockLen)
	for i := range buf {
		buf[i] = c.xferIdle()
	}
	c.xferIdle()
	c.xferIdle()
	return buf, nil
}

// WriteBlock writes one BlockLen-byte block (SD_writeSingleBlock's
// equivalent single-block path off SD_writeMultipleBlock): send CMD24, the
// start token (0xFE), the data, a dummy CRC, then check the card's
// data-response token.
func (c *Card) WriteBlock(addr uint32, data []byte) error {
	if len(data) != BlockLen {
		return errors.New("sdcard: WriteBlock requires exactly BlockLen bytes")
	}
	c.sendCommand(cmdWriteBlock, addr, 0x00)
	if r1 := c.readR1(); r1 != 0x00 {
		return ErrDataToken
	}

	c.xferByte(0xFE)
	for _, b := range data {
		c.xferByte(b)
	}
	c.xferIdle()
	c.xferIdle()

	resp := c.xferIdle()
	if resp&0x1F != 0x05 {
		return ErrDataToken
	}
	for i := 0; i < 10000; i++ {
		if c.xferIdle() != 0x00 {
			break
		}
	}
	return nil
}
