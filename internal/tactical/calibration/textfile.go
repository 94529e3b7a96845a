package calibration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseNumericText reads whitespace- or comma-separated numbers, one row
// per line, as written by common numeric array tools. Blank lines and
// lines starting with '#' are skipped.
func ParseNumericText(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '[' || r == ']'
		})
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			out = append(out, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseIntrinsics builds Intrinsics from a 9-value camera matrix and a
// distortion vector of up to five values.
func ParseIntrinsics(matrix, distortion io.Reader) (Intrinsics, error) {
	m, err := ParseNumericText(matrix)
	if err != nil {
		return Intrinsics{}, fmt.Errorf("camera matrix: %w", err)
	}
	if len(m) != 9 {
		return Intrinsics{}, fmt.Errorf("camera matrix: expected 9 values, got %d", len(m))
	}
	var intr Intrinsics
	copy(intr.Matrix[:], m)
	if distortion != nil {
		d, err := ParseNumericText(distortion)
		if err != nil {
			return Intrinsics{}, fmt.Errorf("distortion: %w", err)
		}
		intr.Distortion = d
	}
	if err := intr.Validate(); err != nil {
		return Intrinsics{}, err
	}
	return intr, nil
}

// LoadIntrinsicsFiles reads a camera matrix file and an optional
// distortion file (empty path means no distortion).
func LoadIntrinsicsFiles(matrixPath, distortionPath string) (Intrinsics, error) {
	mf, err := os.Open(matrixPath)
	if err != nil {
		return Intrinsics{}, fmt.Errorf("failed to open camera matrix: %w", err)
	}
	defer mf.Close()

	var dist io.Reader
	if distortionPath != "" {
		df, err := os.Open(distortionPath)
		if err != nil {
			return Intrinsics{}, fmt.Errorf("failed to open distortion coefficients: %w", err)
		}
		defer df.Close()
		dist = df
	}
	return ParseIntrinsics(mf, dist)
}
