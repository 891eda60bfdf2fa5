package insuree

import (
	"context"
	"strconv"

	"imisbatch/pkg/logger"
)

// Defaults applied when the number format is not configured.
const (
	DefaultNumberLength = 9
	DefaultModuloRoot   = 7
)

// NumberConfig describes the CHF number format: total digit length and the
// modulo root used for the trailing checksum.
type NumberConfig struct {
	Length     int
	ModuloRoot int
}

// ChecksumWidth returns the number of digits reserved for the checksum,
// equal to the decimal digit-length of the modulo root.
func (c NumberConfig) ChecksumWidth() int {
	return len(strconv.Itoa(c.ModuloRoot))
}

// ResolveNumberConfig builds a NumberConfig from externally supplied values,
// substituting defaults for absent (zero) ones. Missing configuration is a
// soft error: generation continues, but numbers produced with defaults may
// not match what the rest of the deployment validates against.
func ResolveNumberConfig(ctx context.Context, length, moduloRoot int) NumberConfig {
	if length <= 0 || moduloRoot <= 0 {
		logger.Warn(ctx, "insuree number length or modulo root not configured, falling back to defaults",
			"default_length", DefaultNumberLength,
			"default_modulo_root", DefaultModuloRoot,
		)
		return NumberConfig{Length: DefaultNumberLength, ModuloRoot: DefaultModuloRoot}
	}
	return NumberConfig{Length: length, ModuloRoot: moduloRoot}
}
