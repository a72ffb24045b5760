//go:build linux && (arm || arm64)

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// requestLine finds the named line on any gpiochip and requests it.
//
// On Pi 5 the header GPIOs may live on gpiochip4 instead of gpiochip0, so
// every chip under /dev is tried.
func requestLine(pin int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Chip, *gpiocdev.Line, error) {
	name := lineName(pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, "gpiochip") {
			p := filepath.Join("/dev", n)
			if p != chipCandidates[0] && p != chipCandidates[1] {
				chipCandidates = append(chipCandidates, p)
			}
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(name)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return chip, line, nil
	}
	return nil, nil, fmt.Errorf("gpio: line %q not found (or busy)", name)
}

func openOutput(pin int, initial bool, consumer string) (Output, error) {
	v := 0
	if initial {
		v = 1
	}
	chip, line, err := requestLine(pin, gpiocdev.AsOutput(v), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, err
	}
	return &gpiodLine{chip: chip, line: line}, nil
}

func openInput(pin int, bias Bias, consumer string) (Input, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(consumer)}
	switch bias {
	case BiasPullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	}
	chip, line, err := requestLine(pin, opts...)
	if err != nil {
		return nil, err
	}
	return &gpiodLine{chip: chip, line: line}, nil
}

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLine) Set(high bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	v := 0
	if high {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodLine) Get() (bool, error) {
	if g == nil || g.line == nil {
		return false, fmt.Errorf("gpio: line not initialized")
	}
	v, err := g.line.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (g *gpiodLine) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
