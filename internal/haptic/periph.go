package haptic

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// periphChannel drives one actuator through periph.io's PWM support, which
// on a Raspberry Pi uses the hardware PWM block or DMA-driven soft PWM.
type periphChannel struct {
	pin  pgpio.PinIO
	freq physic.Frequency
}

var periphInit = func() error {
	_, err := host.Init()
	return err
}

func openPeriph(pins [NumChannels]int, hz int) ([NumChannels]dutyChannel, error) {
	if err := periphInit(); err != nil {
		return [NumChannels]dutyChannel{}, fmt.Errorf("haptic: periph init: %w", err)
	}
	var out [NumChannels]dutyChannel
	for i, n := range pins {
		name := fmt.Sprintf("GPIO%d", n)
		p := gpioreg.ByName(name)
		if p == nil {
			closeAll(out[:i])
			return [NumChannels]dutyChannel{}, fmt.Errorf("haptic: channel %s: pin %s not found", Channel(i), name)
		}
		out[i] = &periphChannel{pin: p, freq: physic.Frequency(hz) * physic.Hertz}
	}
	return out, nil
}

func dutyFromPermille(permille uint16) pgpio.Duty {
	if permille >= MaxIntensity {
		return pgpio.DutyMax
	}
	return pgpio.Duty(int64(pgpio.DutyMax) * int64(permille) / MaxIntensity)
}

func (c *periphChannel) SetDuty(permille uint16) error {
	if permille == 0 {
		return c.pin.Out(pgpio.Low)
	}
	return c.pin.PWM(dutyFromPermille(permille), c.freq)
}

func (c *periphChannel) Close() error {
	return c.pin.Halt()
}
