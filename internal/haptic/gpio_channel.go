package haptic

import (
	"fmt"

	"hapticscan/internal/gpio"
)

// gpioChannel drives an actuator as a plain digital output for boards
// without spare PWM channels. Any duty > 0 turns the motor fully on.
type gpioChannel struct {
	line gpio.Output
	on   bool
	set  bool
}

func openGPIOChannels(pins [NumChannels]int) ([NumChannels]dutyChannel, error) {
	var out [NumChannels]dutyChannel
	for i, pin := range pins {
		line, err := gpio.OpenOutput(pin, false, "hapticscan-actuator")
		if err != nil {
			closeAll(out[:i])
			return [NumChannels]dutyChannel{}, fmt.Errorf("haptic: channel %s: %w", Channel(i), err)
		}
		out[i] = &gpioChannel{line: line}
	}
	return out, nil
}

func (g *gpioChannel) SetDuty(permille uint16) error {
	on := permille > 0
	if g.set && on == g.on {
		return nil
	}
	if err := g.line.Set(on); err != nil {
		return err
	}
	g.on, g.set = on, true
	return nil
}

func (g *gpioChannel) Close() error {
	_ = g.line.Set(false)
	return g.line.Close()
}
