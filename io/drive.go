package io

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ezrec/avc2/internal"
)

// Drive device ports.
const (
	DRIVE_PORT_ID         = 0x0 // r: device kind
	DRIVE_PORT_BLOCK_HIGH = 0x2 // w: block number, high byte
	DRIVE_PORT_BLOCK_LOW  = 0x3 // w: block number, low byte
	DRIVE_PORT_PAGE       = 0x4 // w: memory page of transfers
	DRIVE_PORT_READ       = 0x8 // w: block to memory
	DRIVE_PORT_WRITE      = 0x9 // w: memory to block

	BLOCK_SIZE = 256 // Bytes per block, and per transfer.
)

var _drive_defines = map[string]string{
	"DRIVE_PORT_ID":         fmt.Sprintf("%#x", DRIVE_PORT_ID),
	"DRIVE_PORT_BLOCK_HIGH": fmt.Sprintf("%#x", DRIVE_PORT_BLOCK_HIGH),
	"DRIVE_PORT_BLOCK_LOW":  fmt.Sprintf("%#x", DRIVE_PORT_BLOCK_LOW),
	"DRIVE_PORT_PAGE":       fmt.Sprintf("%#x", DRIVE_PORT_PAGE),
	"DRIVE_PORT_READ":       fmt.Sprintf("%#x", DRIVE_PORT_READ),
	"DRIVE_PORT_WRITE":      fmt.Sprintf("%#x", DRIVE_PORT_WRITE),
}

var blockName = regexp.MustCompile(`(?i)^[0-9a-f]{4}\.block$`)

// Block is a single drive block.
type Block [BLOCK_SIZE]byte

// Drive is a block storage device with 65536 blocks of 256 bytes,
// archived as a host directory of XXXX.block files.
// Blocks never written read as zeros.
type Drive struct {
	Path   string            // Archive directory.
	Blocks map[uint16]*Block // Blocks with content.

	block uint16
	page  uint8
}

var _ Device = (*Drive)(nil)

// NewDrive loads a drive archive. A missing archive is an empty drive.
func NewDrive(path string) (drive *Drive, err error) {
	drive = &Drive{Path: path}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
		return
	}
	if err != nil {
		drive = nil
		return
	}
	if !info.IsDir() {
		drive = nil
		err = ErrDriveNotDirectory
		return
	}

	err = drive.Unmarshal(os.DirFS(path))
	if err != nil {
		drive = nil
	}

	return
}

// Unmarshal loads blocks from a file system by scanning for files
// matching the pattern XXXX.block (4 hex digits).
func (drive *Drive) Unmarshal(filesys fs.FS) (err error) {
	return fs.WalkDir(filesys, ".", func(path string, d fs.DirEntry, err_in error) (err error) {
		if err_in != nil {
			err = err_in
			return
		}
		if d.IsDir() {
			if path != "." {
				err = fs.SkipDir
			}
			return
		}
		name := d.Name()
		if !blockName.MatchString(name) {
			return
		}
		index, err := strconv.ParseUint(strings.TrimSuffix(name, filepath.Ext(name)), 16, 16)
		if err != nil {
			return
		}

		file, err := filesys.Open(path)
		if err != nil {
			return
		}
		defer file.Close()

		block := &Block{}
		_, err = io.ReadFull(file, block[:])
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			// Short blocks are zero filled.
			err = nil
		}
		if err != nil {
			return
		}

		if drive.Blocks == nil {
			drive.Blocks = make(map[uint16]*Block)
		}
		drive.Blocks[uint16(index)] = block

		return
	})
}

// Marshal writes every block to a file system as XXXX.block files.
func (drive *Drive) Marshal(filesys CreateFS) (err error) {
	for index, block := range drive.Blocks {
		var file io.WriteCloser
		file, err = filesys.Create(fmt.Sprintf("%04x.block", index))
		if err != nil {
			return
		}

		_, err = file.Write(block[:])
		cerr := file.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			return
		}
	}

	return
}

// Save writes the drive to its archive directory, creating it if needed.
func (drive *Drive) Save() (err error) {
	parent := DirFS(filepath.Dir(drive.Path))
	name := filepath.Base(drive.Path)

	subsys, err := parent.Sub(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return
		}
		// Create the directory
		err = parent.Mkdir(name, 0755)
		if err != nil {
			return
		}
		subsys, err = parent.Sub(name)
		if err != nil {
			return
		}
	}

	return drive.Marshal(subsys)
}

// Block returns a copy of a block.
func (drive *Drive) Block(index uint16) (block Block) {
	stored, ok := drive.Blocks[index]
	if ok {
		block = *stored
	}
	return
}

// address is the memory address of the transfer page.
func (drive *Drive) address() uint16 {
	return internal.Word(drive.page, 0)
}

// Read reads a drive port.
func (drive *Drive) Read(port uint8) (value uint8) {
	if port == DRIVE_PORT_ID {
		value = KIND_DRIVE
	}
	return
}

// Write writes a drive port.
func (drive *Drive) Write(port uint8, value uint8) (resp Response) {
	switch port {
	case DRIVE_PORT_BLOCK_HIGH:
		drive.block = internal.SetHigh(drive.block, value)
	case DRIVE_PORT_BLOCK_LOW:
		drive.block = internal.SetLow(drive.block, value)
	case DRIVE_PORT_PAGE:
		drive.page = value
	case DRIVE_PORT_READ:
		block := drive.Block(drive.block)
		resp = DmaToMemory(drive.address(), block[:])
	case DRIVE_PORT_WRITE:
		resp = DmaToDevice(drive.address(), BLOCK_SIZE)
	}

	return
}

// Shutdown saves the drive archive.
func (drive *Drive) Shutdown() error {
	return drive.Save()
}

// DmaCallback stores a transferred block into the selected block.
func (drive *Drive) DmaCallback(data []byte) {
	block := &Block{}
	copy(block[:], data)

	if drive.Blocks == nil {
		drive.Blocks = make(map[uint16]*Block)
	}
	drive.Blocks[drive.block] = block
}
