//go:build linux && (arm || arm64)

package haptic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// sysfsPWM drives a hardware PWM channel via /sys/class/pwm.
//
// Notes:
//   - On Raspberry Pi, the four actuator pins need a PWM overlay
//     (e.g. `dtoverlay=pwm-2chan` on each PWM block) so they appear under
//     /sys/class/pwm.
//   - Duty is given in permille and mapped onto the configured period.
type sysfsPWM struct {
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int

	periodNS uint64
	enabled  bool
}

var pwmSysfsBase = "/sys/class/pwm"

func openSysfs(specs [NumChannels]string, hz int) ([NumChannels]dutyChannel, error) {
	var out [NumChannels]dutyChannel
	for i, spec := range specs {
		ch, err := openSysfsChannel(spec, i, hz)
		if err != nil {
			closeAll(out[:i])
			return [NumChannels]dutyChannel{}, fmt.Errorf("haptic: channel %s: %w", Channel(i), err)
		}
		out[i] = ch
	}
	return out, nil
}

// parseSysfsSpec splits "pwmchipN/M" into the chip directory name and the
// channel number. An empty spec selects the first chip with the default channel.
func parseSysfsSpec(spec string, defaultChannel int) (chip string, channel int, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		chipPath, err := findPWMChip(defaultChannel + 1)
		if err != nil {
			return "", 0, err
		}
		return filepath.Base(chipPath), defaultChannel, nil
	}
	chip, chStr, ok := strings.Cut(spec, "/")
	if !ok || !strings.HasPrefix(chip, "pwmchip") {
		return "", 0, fmt.Errorf("invalid sysfs pwm channel %q (want pwmchipN/M)", spec)
	}
	channel, err = strconv.Atoi(chStr)
	if err != nil || channel < 0 {
		return "", 0, fmt.Errorf("invalid sysfs pwm channel %q (want pwmchipN/M)", spec)
	}
	return chip, channel, nil
}

func openSysfsChannel(spec string, defaultChannel int, hz int) (*sysfsPWM, error) {
	chip, channel, err := parseSysfsSpec(spec, defaultChannel)
	if err != nil {
		return nil, err
	}
	chipPath := filepath.Join(pwmSysfsBase, chip)
	d := &sysfsPWM{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := d.ensureExported(); err != nil {
		return nil, err
	}
	if err := d.setFrequencyHz(hz); err != nil {
		return nil, err
	}
	return d, nil
}

// findPWMChip returns the first pwmchip exposing at least minChannels channels.
func findPWMChip(minChannels int) (string, error) {
	base := pwmSysfsBase
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", base, err)
	}
	// In sysfs, pwmchipN entries are commonly symlinks, not directories.
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "pwmchip") {
			continue
		}
		chip := filepath.Join(base, name)
		n, rerr := readInt(filepath.Join(chip, "npwm"))
		if rerr != nil || n < minChannels {
			continue
		}
		return chip, nil
	}
	return "", fmt.Errorf("no sysfs pwmchip with %d channels found (is the pwm overlay enabled?)", minChannels)
}

func (d *sysfsPWM) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(d.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(d.channel)); err != nil {
		// If already exported by someone else, ignore.
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("export pwm: %w", err)
	}

	// Wait briefly for sysfs node to appear.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(d.pwmPath); err != nil {
		return fmt.Errorf("pwm path not created after export: %w", err)
	}
	return nil
}

func (d *sysfsPWM) setFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("invalid frequency %d", hz)
	}
	periodNS := uint64(1_000_000_000 / hz)
	if periodNS == 0 {
		periodNS = 1
	}

	// Disable before changing period/duty (common sysfs requirement).
	_ = d.writeBool("enable", false)
	d.enabled = false

	if err := d.writeUint("duty_cycle", 0); err != nil {
		return err
	}
	if err := d.writeUint("period", periodNS); err != nil {
		return err
	}
	d.periodNS = periodNS
	return nil
}

func (d *sysfsPWM) SetDuty(permille uint16) error {
	if permille > MaxIntensity {
		permille = MaxIntensity
	}
	duty := d.periodNS * uint64(permille) / MaxIntensity
	if err := d.writeUint("duty_cycle", duty); err != nil {
		return err
	}
	if !d.enabled {
		if err := d.writeBool("enable", true); err != nil {
			return err
		}
		d.enabled = true
	}
	return nil
}

func (d *sysfsPWM) Close() error {
	_ = d.writeUint("duty_cycle", 0)
	err := d.writeBool("enable", false)
	d.enabled = false
	return err
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

func writeSysfs(path string, value string) error {
	// Use O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation flags. Right after export udev may still be fixing
	// permissions, so EACCES/ENOENT are retried for a short window.
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		lastErr := errors.Join(werr, cerr)
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return lastErr
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
