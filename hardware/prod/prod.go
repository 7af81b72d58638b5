// Package prod is the Raspberry Pi hardware.Port backend: an ISM330DHCX
// IMU over I2C, a 4x3 GPIO matrix keypad, aplay for audio, and a GPIO
// power switch. BLE scanning is left as a documented stub (see ScanBLE).
package prod

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"tire/hardware"
)

// ISM330DHCX register map, ported from the raw I2C addressing used by
// the reference wiringPi driver.
const (
	imuAddr     = 0x6A
	regWhoAmI   = 0x0F
	regCtrl1XL  = 0x10
	regCtrl2G   = 0x11
	regOutXLG   = 0x22
	regOutXLA   = 0x28
	gyroScale   = (8.75 / 1000.0) * (3.14159 / 180.0) // dps/LSB -> rad/s
	accelScaleG = 0.061 / 1000.0                      // mg/LSB -> g
	gravity     = 9.81
)

// GPIO pin names for the power switch and the 4x3 matrix keypad, named
// to match the reference schematic. Adjust if physical wiring differs.
var (
	powerSwitchPin = "GPIO4"
	rowPins        = []string{"GPIO27", "GPIO5", "GPIO6", "GPIO13"}
	colPins        = []string{"GPIO17", "GPIO22", "GPIO26"}
)

// keyMap mirrors the reference row/col scan table.
var keyMap = [4][3]hardware.KeyPress{
	{hardware.KeyCol1Up, hardware.KeyCol2Up, hardware.KeyCol3Up},
	{hardware.KeyCol1Down, hardware.KeyCol2Down, hardware.KeyCol3Down},
	{hardware.KeyCol4Up, hardware.KeyCol4Down, hardware.KeyCurrentSelection},
	{hardware.KeyWhereAmI, hardware.KeyStartNavigation, hardware.KeyNone},
}

// audioDir is where cue wav files are looked up by PlayAudio.
const audioDir = "data/audio"

// Hardware drives the physical Raspberry Pi device.
type Hardware struct {
	imu i2c.Dev

	powerSwitch gpio.PinIO
	rows        []gpio.PinIO
	cols        []gpio.PinIO

	log *log.Logger
}

// New constructs an uninitialized prod backend; call Initialize before
// use.
func New() *Hardware {
	return &Hardware{log: log.New(os.Stderr, "[hardware/prod] ", log.LstdFlags)}
}

// Initialize brings up the periph host, opens the IMU over I2C,
// configures the keypad GPIO, and probes for the power switch.
func (h *Hardware) Initialize() error {
	h.log.Println("initializing Raspberry Pi hardware")

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("prod: periph host init: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("prod: i2c open: %w", err)
	}
	h.imu = i2c.Dev{Addr: imuAddr, Bus: bus}

	if err := h.initIMURegisters(); err != nil {
		return fmt.Errorf("prod: imu init: %w", err)
	}

	h.powerSwitch = gpioreg.ByName(powerSwitchPin)
	if h.powerSwitch == nil {
		return fmt.Errorf("prod: power switch pin %s not found", powerSwitchPin)
	}
	if err := h.powerSwitch.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("prod: power switch pin config: %w", err)
	}

	h.rows = make([]gpio.PinIO, len(rowPins))
	for i, name := range rowPins {
		p := gpioreg.ByName(name)
		if p == nil {
			return fmt.Errorf("prod: row pin %s not found", name)
		}
		if err := p.Out(gpio.High); err != nil {
			return fmt.Errorf("prod: row pin %s config: %w", name, err)
		}
		h.rows[i] = p
	}

	h.cols = make([]gpio.PinIO, len(colPins))
	for i, name := range colPins {
		p := gpioreg.ByName(name)
		if p == nil {
			return fmt.Errorf("prod: col pin %s not found", name)
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return fmt.Errorf("prod: col pin %s config: %w", name, err)
		}
		h.cols[i] = p
	}

	h.log.Println("initialization complete")
	return nil
}

func (h *Hardware) initIMURegisters() error {
	whoAmI := make([]byte, 1)
	if err := h.imu.Tx([]byte{regWhoAmI}, whoAmI); err != nil {
		return fmt.Errorf("who-am-i read: %w", err)
	}
	h.log.Printf("IMU WHO_AM_I: 0x%02X", whoAmI[0])

	// 52Hz, 2g accelerometer; 52Hz, 250dps gyroscope.
	if err := h.imu.Tx([]byte{regCtrl1XL, 0x30}, nil); err != nil {
		return fmt.Errorf("accel config: %w", err)
	}
	if err := h.imu.Tx([]byte{regCtrl2G, 0x30}, nil); err != nil {
		return fmt.Errorf("gyro config: %w", err)
	}
	return nil
}

func (h *Hardware) readWord(regLow byte) (int16, error) {
	buf := make([]byte, 2)
	if err := h.imu.Tx([]byte{regLow}, buf); err != nil {
		return 0, err
	}
	return int16(uint16(buf[1])<<8 | uint16(buf[0])), nil
}

// ReadIMU reads the six IMU channels, converting gyro counts to rad/s
// and accel counts to m/s^2.
func (h *Hardware) ReadIMU() hardware.IMUSample {
	gx, err := h.readWord(regOutXLG)
	if err != nil {
		h.log.Printf("gyro X read error: %v", err)
	}
	gy, err := h.readWord(regOutXLG + 2)
	if err != nil {
		h.log.Printf("gyro Y read error: %v", err)
	}
	gz, err := h.readWord(regOutXLG + 4)
	if err != nil {
		h.log.Printf("gyro Z read error: %v", err)
	}

	ax, err := h.readWord(regOutXLA)
	if err != nil {
		h.log.Printf("accel X read error: %v", err)
	}
	ay, err := h.readWord(regOutXLA + 2)
	if err != nil {
		h.log.Printf("accel Y read error: %v", err)
	}
	az, err := h.readWord(regOutXLA + 4)
	if err != nil {
		h.log.Printf("accel Z read error: %v", err)
	}

	return hardware.IMUSample{
		AX: float64(ax) * accelScaleG * gravity,
		AY: float64(ay) * accelScaleG * gravity,
		AZ: float64(az) * accelScaleG * gravity,
		GX: float64(gx) * gyroScale,
		GY: float64(gy) * gyroScale,
		GZ: float64(gz) * gyroScale,
	}
}

// ScanBLE is unimplemented on this backend: a correct scan needs either
// the BlueZ HCI socket API or parsing raw hcidump output, neither of
// which a shell-out to `hcitool lescan` can give reliable RSSI for. It
// always returns an empty scan; callers treat this the same as a
// transient scan failure.
func (h *Hardware) ScanBLE() []hardware.BLEReading {
	h.log.Println("ScanBLE: raw-HCI RSSI path not implemented, returning empty scan")
	return nil
}

// PollKey scans the keypad matrix row by row, debouncing a held key for
// 20ms before returning it.
func (h *Hardware) PollKey() hardware.KeyPress {
	for r, row := range h.rows {
		row.Out(gpio.Low)

		for c, col := range h.cols {
			if col.Read() == gpio.Low {
				time.Sleep(20 * time.Millisecond)
				if col.Read() == gpio.Low {
					row.Out(gpio.High)
					return keyMap[r][c]
				}
			}
		}

		row.Out(gpio.High)
	}
	return hardware.KeyNone
}

// PlayAudio fires off aplay in the background for the given cue.
func (h *Hardware) PlayAudio(cueID string) {
	path := fmt.Sprintf("%s/%s.wav", audioDir, cueID)
	cmd := exec.Command("aplay", "-q", path)
	if err := cmd.Start(); err != nil {
		h.log.Printf("play_audio: failed to start aplay for %s: %v", cueID, err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			h.log.Printf("play_audio: aplay exited with error for %s: %v", cueID, err)
		}
	}()
}

// PowerOn reads the physical power switch GPIO.
func (h *Hardware) PowerOn() bool {
	return h.powerSwitch.Read() == gpio.High
}
