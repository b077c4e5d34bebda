package main

import (
	"fmt"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// versionBannerRe matches the firmware's V response, e.g.
// "V 3.5.0 SIGNALduino cc1101 - compiled at ...".
var versionBannerRe = regexp.MustCompile(`^V\s+([0-9]+\.[0-9]+\.[0-9]+)[^\s]*\s+(SIGNAL(?:duino|ESP))`)

// FirmwareInfo is the parsed V banner.
type FirmwareInfo struct {
	Version *goversion.Version
	Variant string
	Banner  string
}

// ParseVersionBanner extracts the firmware version from a V response.
func ParseVersionBanner(line string) (*FirmwareInfo, error) {
	m := versionBannerRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, fmt.Errorf("firmware: unrecognized version banner %q", line)
	}
	v, err := goversion.NewVersion(m[1])
	if err != nil {
		return nil, fmt.Errorf("firmware: bad version %q: %w", m[1], err)
	}
	return &FirmwareInfo{Version: v, Variant: m[2], Banner: line}, nil
}

// CheckMinimum verifies the firmware against the configured minimum.
func (fi *FirmwareInfo) CheckMinimum(min string) error {
	if min == "" {
		return nil
	}
	constraint, err := goversion.NewConstraint(">= " + min)
	if err != nil {
		return fmt.Errorf("firmware: bad min_version %q: %w", min, err)
	}
	if !constraint.Check(fi.Version) {
		return fmt.Errorf("firmware: version %s is below the required minimum %s", fi.Version, min)
	}
	return nil
}

// HardwareConfig describes one flashable board.
type HardwareConfig struct {
	Name       string
	Programmer string
	PartNo     string
	Baud       int
	ExtraFlags string
}

// hardwareConfigs maps board type names to their avrdude parameters.
// ESP boards flash over their own tooling and are not listed.
var hardwareConfigs = map[string]HardwareConfig{
	"nano328":         {Name: "Arduino Nano 328", Programmer: "arduino", PartNo: "atmega328p", Baud: 57600},
	"nanoCC1101":      {Name: "Arduino Nano 328 with CC1101", Programmer: "arduino", PartNo: "atmega328p", Baud: 57600},
	"miniculCC1101":   {Name: "Arduino Pro Mini with CC1101 (MiniCUL)", Programmer: "arduino", PartNo: "atmega328p", Baud: 57600},
	"promini8cc1101":  {Name: "Arduino Pro Mini 328 8MHz with CC1101", Programmer: "arduino", PartNo: "atmega328p", Baud: 57600},
	"promini16cc1101": {Name: "Arduino Pro Mini 328 16MHz with CC1101", Programmer: "arduino", PartNo: "atmega328p", Baud: 57600},
	"radinoCC1101":    {Name: "Radino CC1101", Programmer: "avr109", PartNo: "atmega32u4", Baud: 57600, ExtraFlags: "-D"},
}

// PrepareFlashCommand builds the avrdude invocation for a board and
// firmware image. Running it is left to the operator; the gateway only
// reports what to run.
func PrepareFlashCommand(hardware, port, hexFile string) (string, error) {
	hc, ok := hardwareConfigs[hardware]
	if !ok {
		return "", fmt.Errorf("firmware: unsupported hardware type for flashing: %s", hardware)
	}
	flags := ""
	if hc.ExtraFlags != "" {
		flags = hc.ExtraFlags + " "
	}
	return fmt.Sprintf("avrdude -c %s -b %d -P %s -p %s -vv %s-U flash:w:%s",
		hc.Programmer, hc.Baud, port, hc.PartNo, flags, hexFile), nil
}
