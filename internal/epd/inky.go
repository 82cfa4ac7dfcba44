// Package epd drives an Inky Impression panel (UC8159 controller) over
// SPI and GPIO. Show is idempotent: pushing the same buffer twice redraws
// the same image. Any hardware failure here is fatal to the run; there is
// no software fallback for a display that cannot be driven.
package epd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// UC8159 command set (subset used here).
const (
	cmdPSR  = 0x00 // panel setting
	cmdPWR  = 0x01 // power setting
	cmdPOF  = 0x02 // power off
	cmdPON  = 0x04 // power on
	cmdBTST = 0x06 // booster soft start
	cmdDTM1 = 0x10 // data transmission
	cmdDRF  = 0x12 // display refresh
	cmdPLL  = 0x30 // PLL control
	cmdTSE  = 0x41 // temperature sensor enable
	cmdCDI  = 0x50 // vcom and data interval (carries the border color)
	cmdTCON = 0x60 // gate/source timing
	cmdTRES = 0x61 // resolution
	cmdPWS  = 0xE3 // power saving
)

// Raspberry Pi pin names the Inky HAT wires to.
const (
	pinReset = "GPIO27"
	pinBusy  = "GPIO17"
	pinDC    = "GPIO22"
)

const busyTimeout = 40 * time.Second

// Display is an open handle to the panel.
type Display struct {
	port spi.PortCloser
	conn spi.Conn

	reset gpio.PinIO
	busy  gpio.PinIO
	dc    gpio.PinIO

	width  int
	height int
	border byte
}

// Open initializes periph, claims the SPI port and control pins, and
// resets the panel. border is the palette index drawn outside the active
// area.
func Open(width, height int, border byte) (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: host init: %w", err)
	}

	port, err := spireg.Open("")
	if err != nil {
		return nil, fmt.Errorf("epd: open SPI: %w", err)
	}
	conn, err := port.Connect(3*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("epd: connect SPI: %w", err)
	}

	d := &Display{
		port:   port,
		conn:   conn,
		reset:  gpioreg.ByName(pinReset),
		busy:   gpioreg.ByName(pinBusy),
		dc:     gpioreg.ByName(pinDC),
		width:  width,
		height: height,
		border: border,
	}
	if d.reset == nil || d.busy == nil || d.dc == nil {
		port.Close()
		return nil, fmt.Errorf("epd: control pins unavailable (reset=%s busy=%s dc=%s)", pinReset, pinBusy, pinDC)
	}

	if err := d.busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("epd: busy pin: %w", err)
	}
	if err := d.dc.Out(gpio.Low); err != nil {
		port.Close()
		return nil, fmt.Errorf("epd: dc pin: %w", err)
	}

	if err := d.hardReset(); err != nil {
		port.Close()
		return nil, err
	}
	if err := d.setup(); err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

// Close powers the panel down and releases the SPI port.
func (d *Display) Close() error {
	_ = d.command(cmdPOF)
	return d.port.Close()
}

// Show transfers a packed 4bpp buffer (two palette indexes per byte,
// width*height/2 bytes) and triggers a full refresh, blocking until the
// panel reports idle.
func (d *Display) Show(buf []byte) error {
	want := d.width * d.height / 2
	if len(buf) != want {
		return fmt.Errorf("epd: buffer is %d bytes, want %d", len(buf), want)
	}

	if err := d.command(cmdDTM1, buf...); err != nil {
		return err
	}
	if err := d.command(cmdPON); err != nil {
		return err
	}
	if err := d.waitIdle(); err != nil {
		return err
	}
	if err := d.command(cmdDRF); err != nil {
		return err
	}
	if err := d.waitIdle(); err != nil {
		return err
	}
	return d.command(cmdPOF)
}

func (d *Display) hardReset() error {
	if err := d.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("epd: reset pin: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := d.reset.Out(gpio.High); err != nil {
		return fmt.Errorf("epd: reset pin: %w", err)
	}
	return d.waitIdle()
}

// setup programs the UC8159 registers for this panel geometry and border.
func (d *Display) setup() error {
	w, h := d.width, d.height

	if err := d.command(cmdTRES,
		byte(w>>8), byte(w), byte(h>>8), byte(h)); err != nil {
		return err
	}

	// Panel setting: scan/shift direction, booster on, soft reset off;
	// second byte selects the 600x448/640x400 class resolution from the
	// panel geometry.
	resBits := byte(0b10)
	if w == 600 {
		resBits = 0b11
	}
	if err := d.command(cmdPSR, 0b11101111, 0b00001000|resBits); err != nil {
		return err
	}

	if err := d.command(cmdPWR, 0x37, 0x00, 0x23, 0x23); err != nil {
		return err
	}
	if err := d.command(cmdPLL, 0x3C); err != nil {
		return err
	}
	if err := d.command(cmdTSE, 0x00); err != nil {
		return err
	}
	if err := d.command(cmdBTST, 0xC7, 0xC7, 0x1D); err != nil {
		return err
	}
	if err := d.command(cmdCDI, d.border<<5|0x17); err != nil {
		return err
	}
	if err := d.command(cmdTCON, 0x22); err != nil {
		return err
	}
	return d.command(cmdPWS, 0xAA)
}

// command sends one command byte (DC low) followed by its data (DC high).
func (d *Display) command(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.write([]byte{cmd}); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	return d.write(data)
}

// write pushes bytes over SPI in chunks the kernel driver accepts.
func (d *Display) write(data []byte) error {
	const chunk = 4096
	for len(data) > 0 {
		n := len(data)
		if n > chunk {
			n = chunk
		}
		if err := d.conn.Tx(data[:n], nil); err != nil {
			return fmt.Errorf("epd: spi tx: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// waitIdle polls the busy pin; the controller holds it low while working.
func (d *Display) waitIdle() error {
	deadline := time.Now().Add(busyTimeout)
	for d.busy.Read() == gpio.Low {
		if time.Now().After(deadline) {
			return fmt.Errorf("epd: busy timeout after %s", busyTimeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
