package insuree

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"imisbatch/internal/core/apperror"
	"imisbatch/internal/domain/location"
)

// Generator produces candidate CHF numbers: a zero-padded main number,
// optionally prefixed with a location code, followed by a zero-padded
// checksum equal to the main number modulo the configured root.
//
// Generate has no side effects beyond populating the code-length cache on
// first use per location type. Uniqueness is the caller's concern.
type Generator struct {
	cfg         NumberConfig
	codeLengths *location.CodeLengthCache
}

// NewGenerator creates a Generator for the given number format.
func NewGenerator(cfg NumberConfig, codeLengths *location.CodeLengthCache) *Generator {
	return &Generator{cfg: cfg, codeLengths: codeLengths}
}

// Config returns the number format the generator was built with.
func (g *Generator) Config() NumberConfig {
	return g.cfg
}

// Generate produces one candidate number. When loc is given, the main
// number starts with the location's numeric code and the rest is random;
// otherwise the whole main number is random. A non-numeric location code
// is bad reference data and fails immediately with LOCATION_CODE_INVALID.
func (g *Generator) Generate(ctx context.Context, loc *location.Location) (string, error) {
	mainWidth := g.cfg.Length - g.cfg.ChecksumWidth()

	var mainNumber int64
	if loc != nil {
		locLen, err := g.codeLengths.Lookup(ctx, loc.Type)
		if err != nil {
			return "", fmt.Errorf("location code length for type %q: %w", loc.Type, err)
		}

		code, err := strconv.ParseInt(loc.Code, 10, 64)
		if err != nil {
			return "", apperror.NewLocationCodeInvalid(loc.Code).WithCause(err)
		}

		randWidth := mainWidth - locLen
		if randWidth < 1 {
			return "", apperror.NewValidation("insuree number length leaves no random digits after location code").
				WithDetail("length", g.cfg.Length).
				WithDetail("location_code_length", locLen)
		}

		mainNumber = code*pow10(randWidth) + randomOfWidth(randWidth)
	} else {
		if mainWidth < 1 {
			return "", apperror.NewValidation("insuree number length leaves no digits before checksum").
				WithDetail("length", g.cfg.Length).
				WithDetail("modulo_root", g.cfg.ModuloRoot)
		}
		mainNumber = randomOfWidth(mainWidth)
	}

	checksum := mainNumber % int64(g.cfg.ModuloRoot)
	return fmt.Sprintf("%0*d%0*d", mainWidth, mainNumber, g.cfg.ChecksumWidth(), checksum), nil
}

// ValidateNumber re-checks an existing number against the format: exact
// length, digits only, and trailing checksum equal to the leading main
// number modulo the root.
func ValidateNumber(cfg NumberConfig, number string) error {
	if len(number) != cfg.Length {
		return apperror.NewValidation("insuree number has wrong length").
			WithDetail("number", number).
			WithDetail("expected_length", cfg.Length)
	}

	mainWidth := cfg.Length - cfg.ChecksumWidth()
	mainNumber, err := strconv.ParseInt(number[:mainWidth], 10, 64)
	if err != nil {
		return apperror.NewValidation("insuree number is not numeric").
			WithDetail("number", number).
			WithCause(err)
	}
	checksum, err := strconv.ParseInt(number[mainWidth:], 10, 64)
	if err != nil {
		return apperror.NewValidation("insuree number is not numeric").
			WithDetail("number", number).
			WithCause(err)
	}

	if mainNumber%int64(cfg.ModuloRoot) != checksum {
		return apperror.NewValidation("insuree number checksum mismatch").
			WithDetail("number", number)
	}
	return nil
}

// randomOfWidth returns a uniform random integer with exactly width decimal
// digits, i.e. from [10^(width-1), 10^width - 1].
func randomOfWidth(width int) int64 {
	low := pow10(width - 1)
	return low + rand.Int64N(low*9)
}

func pow10(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
