package io

import (
	"errors"
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeDevice records the traffic it sees.
type fakeDevice struct {
	kind      uint8
	ports     [PORT_COUNT]uint8
	responses map[uint8]Response
	delivered [][]byte
	shutdowns int
	order     *[]int
	slot      int
	fail      error
}

func (fd *fakeDevice) Read(port uint8) uint8 {
	if port == 0 {
		return fd.kind
	}
	return fd.ports[port]
}

func (fd *fakeDevice) Write(port uint8, value uint8) Response {
	fd.ports[port] = value
	return fd.responses[port]
}

func (fd *fakeDevice) Shutdown() error {
	fd.shutdowns++
	if fd.order != nil {
		*fd.order = append(*fd.order, fd.slot)
	}
	return fd.fail
}

func (fd *fakeDevice) DmaCallback(data []byte) {
	fd.delivered = append(fd.delivered, data)
}

func TestBus_ReadWrite(t *testing.T) {
	assert := assert.New(t)

	sys := &fakeDevice{kind: KIND_SYSTEM}
	bus, err := NewBus(sys)
	assert.NoError(err)

	dev := &fakeDevice{kind: 0x42}
	assert.NoError(bus.Attach(3, dev))

	assert.Equal(KIND_SYSTEM, bus.Read(0x00))
	assert.Equal(uint8(0x42), bus.Read(0x30))

	resp, err := bus.Write(0x35, 0x99)
	assert.NoError(err)
	assert.Equal(RESPONSE_NONE, resp.Kind)
	assert.Equal(uint8(0x99), dev.ports[5])
	assert.Equal(uint8(0x99), bus.Read(0x35))

	// Empty slots are no-ops.
	assert.Equal(uint8(0), bus.Read(0x40))
	resp, err = bus.Write(0x41, 0x12)
	assert.NoError(err)
	assert.Equal(RESPONSE_NONE, resp.Kind)
	assert.Equal(uint8(0), bus.Read(0xff))
}

func TestBus_Attach(t *testing.T) {
	assert := assert.New(t)

	bus, err := NewBus(&fakeDevice{})
	assert.NoError(err)

	assert.ErrorIs(bus.Attach(0, &fakeDevice{}), ErrSlotReserved)
	assert.ErrorIs(bus.Attach(16, &fakeDevice{}), ErrSlotRange)
	assert.ErrorIs(bus.Attach(-1, &fakeDevice{}), ErrSlotRange)
	assert.NoError(bus.Attach(15, &fakeDevice{}))
	assert.ErrorIs(bus.Attach(15, &fakeDevice{}), ErrSlotDuplicate)

	assert.NotNil(bus.Device(15))
	assert.Nil(bus.Device(14))
	assert.Nil(bus.Device(16))
}

func TestBus_DmaToDevice(t *testing.T) {
	assert := assert.New(t)

	bus, err := NewBus(&fakeDevice{})
	assert.NoError(err)

	// No source yet - dropped.
	bus.Deliver([]byte{1, 2, 3})

	a := &fakeDevice{responses: map[uint8]Response{9: DmaToDevice(0x1200, 3)}}
	b := &fakeDevice{responses: map[uint8]Response{9: DmaToDevice(0x3400, 2)}}
	assert.NoError(bus.Attach(1, a))
	assert.NoError(bus.Attach(2, b))

	resp, err := bus.Write(0x19, 0)
	assert.NoError(err)
	assert.Equal(RESPONSE_DMA_TO_DEVICE, resp.Kind)
	assert.Equal(uint16(0x1200), resp.Address)
	assert.Equal(3, resp.Length)

	bus.Deliver([]byte{4, 5, 6})
	assert.Equal([][]byte{{4, 5, 6}}, a.delivered)
	assert.Empty(b.delivered)

	_, err = bus.Write(0x29, 0)
	assert.NoError(err)
	bus.Deliver([]byte{7, 8})
	assert.Equal([][]byte{{7, 8}}, b.delivered)
	assert.Len(a.delivered, 1)
}

func TestBus_DmaToMemory(t *testing.T) {
	assert := assert.New(t)

	dev := &fakeDevice{responses: map[uint8]Response{8: DmaToMemory(0x0400, []byte{0xaa, 0xbb})}}
	bus, err := NewBus(&fakeDevice{})
	assert.NoError(err)
	assert.NoError(bus.Attach(4, dev))

	resp, err := bus.Write(0x48, 1)
	assert.NoError(err)
	assert.Equal(RESPONSE_DMA_TO_MEMORY, resp.Kind)
	assert.Equal([]byte{0xaa, 0xbb}, resp.Data)

	// Device to memory transfers are not delivery sources.
	bus.Deliver([]byte{1})
	assert.Empty(dev.delivered)
}

func TestBus_Shutdown(t *testing.T) {
	assert := assert.New(t)

	var order []int
	sys := &fakeDevice{order: &order, slot: 0, responses: map[uint8]Response{0xf: Shutdown(42)}}
	bus, err := NewBus(sys)
	assert.NoError(err)

	devs := map[int]*fakeDevice{}
	for _, slot := range []int{9, 2, 5} {
		dev := &fakeDevice{order: &order, slot: slot}
		if slot == 2 {
			dev.fail = errors.New("disk on fire")
		}
		devs[slot] = dev
		assert.NoError(bus.Attach(slot, dev))
	}

	resp, err := bus.Write(0x0f, 42)
	assert.Equal(RESPONSE_SHUTDOWN, resp.Kind)
	var halt *ErrHalt
	assert.True(errors.As(err, &halt))
	assert.Equal(uint8(42), halt.Code)
	assert.True(bus.Halted())

	assert.Equal([]int{0, 2, 5, 9}, order)
	assert.Equal(1, sys.shutdowns)
	for _, dev := range devs {
		assert.Equal(1, dev.shutdowns)
	}

	// Only once.
	bus.Shutdown()
	assert.Equal([]int{0, 2, 5, 9}, order)
}

func TestResponseKind_String(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("none", RESPONSE_NONE.String())
	assert.Equal("shutdown", RESPONSE_SHUTDOWN.String())
	assert.Equal("dma-to-memory", RESPONSE_DMA_TO_MEMORY.String())
	assert.Equal("dma-to-device", RESPONSE_DMA_TO_DEVICE.String())
	assert.Equal("ResponseKind(9)", ResponseKind(9).String())
}

func TestDefines(t *testing.T) {
	assert := assert.New(t)

	defines := maps.Collect(Defines())
	assert.Equal("16", defines["SLOT_COUNT"])
	assert.Equal("0x9", defines["SYSTEM_PORT_STDOUT"])
	assert.Equal("0xf", defines["SYSTEM_PORT_HALT"])
	assert.Equal("0x8", defines["DRIVE_PORT_READ"])
}
